package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStore_SeedDeliveryAttempts(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()
	alice := fixtures.CreateRecipient()
	bob := fixtures.CreateRecipient()

	ids := []uuid.UUID{alice.ID, bob.ID}
	if err := testDB.Store.SeedDeliveryAttempts(ctx, campaign.ID, ids); err != nil {
		t.Fatalf("SeedDeliveryAttempts() error = %v", err)
	}

	stats, err := testDB.Store.GetDeliveryStats(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetDeliveryStats() error = %v", err)
	}
	if stats.Total != 2 || stats.Pending != 2 {
		t.Errorf("stats = %+v, want 2 total / 2 pending", stats)
	}

	// Re-seeding after a redelivered trigger leaves settled rows alone.
	recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)
	if err := testDB.Store.SeedDeliveryAttempts(ctx, campaign.ID, ids); err != nil {
		t.Fatalf("SeedDeliveryAttempts() re-seed error = %v", err)
	}

	stats, err = testDB.Store.GetDeliveryStats(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetDeliveryStats() error = %v", err)
	}
	if stats.Delivered != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v, want 1 delivered / 1 pending after re-seed", stats)
	}
}

func TestStore_RecordDeliveryAttempt(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()
	alice := fixtures.CreateRecipient()

	if err := testDB.Store.SeedDeliveryAttempts(ctx, campaign.ID, []uuid.UUID{alice.ID}); err != nil {
		t.Fatalf("SeedDeliveryAttempts() error = %v", err)
	}

	first, err := testDB.Store.RecordDeliveryAttempt(ctx, RecordDeliveryAttemptParams{
		CampaignID:  campaign.ID,
		RecipientID: alice.ID,
		Outcome:     DeliveryOutcomeFailed,
		ErrorReason: strPtr("provider timeout"),
	})
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt() error = %v", err)
	}
	if first.AttemptCount != 1 {
		t.Errorf("AttemptCount = %v, want 1", first.AttemptCount)
	}

	// A later pass updates the same row: outcome overwritten, its send count
	// added to the counter.
	second, err := testDB.Store.RecordDeliveryAttempt(ctx, RecordDeliveryAttemptParams{
		CampaignID:      campaign.ID,
		RecipientID:     alice.ID,
		RenderedSubject: strPtr("Hello Alice"),
		RenderedBody:    strPtr("Hi Alice, welcome."),
		Outcome:         DeliveryOutcomeDelivered,
		Attempts:        3,
	})
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt() retry error = %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected retry to reuse the same ledger row")
	}
	if second.AttemptCount != 4 {
		t.Errorf("AttemptCount = %v, want 4 after 1 + 3 sends", second.AttemptCount)
	}
	if second.Outcome != DeliveryOutcomeDelivered {
		t.Errorf("Outcome = %v, want delivered", second.Outcome)
	}
	if second.ErrorReason != nil {
		t.Errorf("ErrorReason = %v, want nil after success", *second.ErrorReason)
	}

	attempts, err := testDB.Store.ListDeliveryAttempts(ctx, campaign.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListDeliveryAttempts() error = %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("len(attempts) = %v, want 1", len(attempts))
	}
}

func TestStore_GetPendingRecipientIDs(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()
	alice := fixtures.CreateRecipient()
	bob := fixtures.CreateRecipient()

	if err := testDB.Store.SeedDeliveryAttempts(ctx, campaign.ID, []uuid.UUID{alice.ID, bob.ID}); err != nil {
		t.Fatalf("SeedDeliveryAttempts() error = %v", err)
	}
	recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)

	pending, err := testDB.Store.GetPendingRecipientIDs(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetPendingRecipientIDs() error = %v", err)
	}
	if len(pending) != 1 || pending[0] != bob.ID {
		t.Errorf("pending = %v, want [%v]", pending, bob.ID)
	}
}

func TestStore_MarkAttemptEngagement(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t, TestDBTypePostgres)

	ctx := context.Background()
	fixtures := NewFixtures(t, testDB)

	campaign := fixtures.CreateCampaign()
	alice := fixtures.CreateRecipient()
	bob := fixtures.CreateRecipient()

	if err := testDB.Store.SeedDeliveryAttempts(ctx, campaign.ID, []uuid.UUID{alice.ID, bob.ID}); err != nil {
		t.Fatalf("SeedDeliveryAttempts() error = %v", err)
	}
	recordOutcome(t, testDB, campaign.ID, alice.ID, DeliveryOutcomeDelivered, nil)

	t.Run("flags stick across redelivered events", func(t *testing.T) {
		if err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, alice.ID, true, false); err != nil {
			t.Fatalf("MarkAttemptEngagement() error = %v", err)
		}
		// Redelivered open must not clear the earlier click and vice versa.
		if err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, alice.ID, true, true); err != nil {
			t.Fatalf("MarkAttemptEngagement() error = %v", err)
		}
		if err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, alice.ID, true, false); err != nil {
			t.Fatalf("MarkAttemptEngagement() error = %v", err)
		}

		stats, err := testDB.Store.GetDeliveryStats(ctx, campaign.ID)
		if err != nil {
			t.Fatalf("GetDeliveryStats() error = %v", err)
		}
		if stats.Opened != 1 || stats.Clicked != 1 {
			t.Errorf("stats = %+v, want 1 opened / 1 clicked", stats)
		}
	})

	t.Run("pending recipients cannot report engagement", func(t *testing.T) {
		err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, bob.ID, true, false)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound for pending recipient", err)
		}
	})

	t.Run("unknown recipient returns ErrNotFound", func(t *testing.T) {
		err := testDB.Store.MarkAttemptEngagement(ctx, campaign.ID, uuid.New(), true, false)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}
