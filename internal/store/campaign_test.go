package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStore_TransitionCampaignStatus(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	t.Run("advances when status matches", func(t *testing.T) {
		campaign := fixtures.CreateCampaign()

		got, err := testDB.Store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{CampaignStatusDraft, CampaignStatusScheduled}, CampaignStatusSending, nil)
		if err != nil {
			t.Fatalf("TransitionCampaignStatus() error = %v", err)
		}
		if got.Status != CampaignStatusSending {
			t.Errorf("Status = %v, want sending", got.Status)
		}
		if got.SentAt == nil {
			t.Error("expected SentAt to be stamped when dispatch begins")
		}
	})

	t.Run("returns ErrStaleStatus on a lost race", func(t *testing.T) {
		campaign := fixtures.CreateCampaign()

		reason := strPtr("cancelled by operator")
		if _, err := testDB.Store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{CampaignStatusDraft}, CampaignStatusCancelled, reason); err != nil {
			t.Fatalf("TransitionCampaignStatus() error = %v", err)
		}

		_, err := testDB.Store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{CampaignStatusDraft, CampaignStatusScheduled}, CampaignStatusSending, nil)
		if !errors.Is(err, ErrStaleStatus) {
			t.Errorf("error = %v, want ErrStaleStatus", err)
		}
	})

	t.Run("returns ErrNotFound for unknown campaign", func(t *testing.T) {
		_, err := testDB.Store.TransitionCampaignStatus(ctx, uuid.New(),
			[]string{CampaignStatusDraft}, CampaignStatusSending, nil)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("appends an event per transition", func(t *testing.T) {
		campaign := fixtures.CreateCampaign()

		if _, err := testDB.Store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{CampaignStatusDraft}, CampaignStatusSending, nil); err != nil {
			t.Fatalf("TransitionCampaignStatus() error = %v", err)
		}
		reason := strPtr("all deliveries failed")
		if _, err := testDB.Store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{CampaignStatusSending}, CampaignStatusFailed, reason); err != nil {
			t.Fatalf("TransitionCampaignStatus() error = %v", err)
		}

		events, err := testDB.Store.GetCampaignEvents(ctx, campaign.ID)
		if err != nil {
			t.Fatalf("GetCampaignEvents() error = %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("len(events) = %v, want 2", len(events))
		}
		if events[0].FromStatus != CampaignStatusDraft || events[0].ToStatus != CampaignStatusSending {
			t.Errorf("first event = %v -> %v, want draft -> sending", events[0].FromStatus, events[0].ToStatus)
		}
		if events[1].Reason == nil || *events[1].Reason != "all deliveries failed" {
			t.Errorf("second event reason = %v, want all deliveries failed", events[1].Reason)
		}
	})
}

func TestStore_SetCampaignResolvedCount(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()

	if err := testDB.Store.SetCampaignResolvedCount(ctx, campaign.ID, 42); err != nil {
		t.Fatalf("SetCampaignResolvedCount() error = %v", err)
	}

	// The count is write-once: a redelivered trigger cannot change it.
	if err := testDB.Store.SetCampaignResolvedCount(ctx, campaign.ID, 7); err != nil {
		t.Fatalf("SetCampaignResolvedCount() second write error = %v", err)
	}

	got, err := testDB.Store.GetCampaignByID(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetCampaignByID() error = %v", err)
	}
	if got.ResolvedRecipientCount == nil || *got.ResolvedRecipientCount != 42 {
		t.Errorf("ResolvedRecipientCount = %v, want 42", got.ResolvedRecipientCount)
	}
}

func TestStore_SyncCampaignCounters(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()
	alice := fixtures.CreateRecipient()
	bob := fixtures.CreateRecipient()
	carol := fixtures.CreateRecipient()

	recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)
	recordOutcome(t, testDB, campaign.ID, bob.ID, DeliveryOutcomeDelivered, nil)
	recordOutcome(t, testDB, campaign.ID, carol.ID, DeliveryOutcomeFailed, strPtr("no destination"))

	if err := testDB.Store.SyncCampaignCounters(ctx, campaign.ID); err != nil {
		t.Fatalf("SyncCampaignCounters() error = %v", err)
	}

	got, err := testDB.Store.GetCampaignByID(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetCampaignByID() error = %v", err)
	}
	if got.DeliveredCount != 2 {
		t.Errorf("DeliveredCount = %v, want 2", got.DeliveredCount)
	}
	if got.FailedCount != 1 {
		t.Errorf("FailedCount = %v, want 1", got.FailedCount)
	}
}

func TestStore_UpdateCampaignEngagement(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	t.Run("email campaigns carry rates", func(t *testing.T) {
		campaign := fixtures.CreateCampaign()
		alice := fixtures.CreateRecipient()
		bob := fixtures.CreateRecipient()

		recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)
		recordOutcome(t, testDB, campaign.ID, bob.ID, DeliveryOutcomeDelivered, nil)

		if err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, alice.ID, true, true); err != nil {
			t.Fatalf("MarkAttemptEngagement() error = %v", err)
		}
		if err := testDB.Store.UpdateCampaignEngagement(ctx, campaign.ID); err != nil {
			t.Fatalf("UpdateCampaignEngagement() error = %v", err)
		}

		got, err := testDB.Store.GetCampaignByID(ctx, campaign.ID)
		if err != nil {
			t.Fatalf("GetCampaignByID() error = %v", err)
		}
		if got.OpenRate == nil || *got.OpenRate != 50.0 {
			t.Errorf("OpenRate = %v, want 50.0", got.OpenRate)
		}
		if got.ClickRate == nil || *got.ClickRate != 50.0 {
			t.Errorf("ClickRate = %v, want 50.0", got.ClickRate)
		}
	})

	t.Run("sms campaigns never get rates", func(t *testing.T) {
		campaign := fixtures.CreateCampaign(func(o *CampaignOpts) {
			o.Channel = ChannelSMS
			o.Subject = nil
		})
		alice := fixtures.CreateRecipient()
		recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)

		if err := testDB.Store.UpdateCampaignEngagement(ctx, campaign.ID); err != nil {
			t.Fatalf("UpdateCampaignEngagement() error = %v", err)
		}

		got, err := testDB.Store.GetCampaignByID(ctx, campaign.ID)
		if err != nil {
			t.Fatalf("GetCampaignByID() error = %v", err)
		}
		if got.OpenRate != nil {
			t.Errorf("OpenRate = %v, want nil for sms", *got.OpenRate)
		}
	})
}

func TestStore_GetDueScheduledCampaigns(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	due := fixtures.CreateCampaign(func(o *CampaignOpts) {
		o.ScheduleMode = ScheduleModeScheduled
	})
	notDue := fixtures.CreateCampaign(func(o *CampaignOpts) {
		o.ScheduleMode = ScheduleModeScheduled
	})

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	testDB.MustExec(t, `UPDATE notification_campaigns SET status = 'scheduled', scheduled_at = $2 WHERE id = $1`, due.ID, past)
	testDB.MustExec(t, `UPDATE notification_campaigns SET status = 'scheduled', scheduled_at = $2 WHERE id = $1`, notDue.ID, future)

	campaigns, err := testDB.Store.GetDueScheduledCampaigns(ctx, time.Now())
	if err != nil {
		t.Fatalf("GetDueScheduledCampaigns() error = %v", err)
	}

	var foundDue, foundNotDue bool
	for _, c := range campaigns {
		if c.ID == due.ID {
			foundDue = true
		}
		if c.ID == notDue.ID {
			foundNotDue = true
		}
	}
	if !foundDue {
		t.Error("expected due campaign in results")
	}
	if foundNotDue {
		t.Error("future campaign should not be due")
	}
}

// recordOutcome writes a settled ledger row for a recipient.
func recordOutcome(t *testing.T, testDB *TestDB, campaignID, recipientID uuid.UUID, outcome string, errorReason *string) {
	t.Helper()
	_, err := testDB.Store.RecordDeliveryAttempt(context.Background(), RecordDeliveryAttemptParams{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Outcome:     outcome,
		ErrorReason: errorReason,
	})
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt() error = %v", err)
	}
}
