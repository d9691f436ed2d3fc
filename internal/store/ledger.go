package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const attemptColumns = `id, campaign_id, recipient_id, rendered_subject, rendered_body, outcome, attempt_count, error_reason, opened, clicked, last_attempt_at, created_at`

// RecordDeliveryAttemptParams represents one delivery outcome for a recipient.
// Attempts is how many sends the caller actually performed for this outcome; a
// zero value counts as one.
type RecordDeliveryAttemptParams struct {
	CampaignID      uuid.UUID
	RecipientID     uuid.UUID
	RenderedSubject *string
	RenderedBody    *string
	Outcome         string
	Attempts        int
	ErrorReason     *string
}

const sqlRecordDeliveryAttempt = `
INSERT INTO delivery_attempts (campaign_id, recipient_id, rendered_subject, rendered_body, outcome, attempt_count, error_reason, last_attempt_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
ON CONFLICT (campaign_id, recipient_id) DO UPDATE
SET outcome = EXCLUDED.outcome,
    rendered_subject = COALESCE(EXCLUDED.rendered_subject, delivery_attempts.rendered_subject),
    rendered_body = COALESCE(EXCLUDED.rendered_body, delivery_attempts.rendered_body),
    attempt_count = delivery_attempts.attempt_count + EXCLUDED.attempt_count,
    error_reason = EXCLUDED.error_reason,
    last_attempt_at = CURRENT_TIMESTAMP
RETURNING ` + attemptColumns

// RecordDeliveryAttempt upserts the ledger row for (campaign_id,
// recipient_id). The first call inserts the row; later calls add their send
// count to attempt_count and overwrite the outcome. The upsert is a single
// statement, so concurrent retries for the same key serialize in the database.
func (s *Store) RecordDeliveryAttempt(ctx context.Context, params RecordDeliveryAttemptParams) (DeliveryAttempt, error) {
	attempts := params.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var attempt DeliveryAttempt
	err := s.db.GetContext(ctx, &attempt, sqlRecordDeliveryAttempt,
		params.CampaignID,
		params.RecipientID,
		params.RenderedSubject,
		params.RenderedBody,
		params.Outcome,
		attempts,
		params.ErrorReason)
	if err != nil {
		return DeliveryAttempt{}, fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return attempt, nil
}

const sqlSeedDeliveryAttempts = `
INSERT INTO delivery_attempts (campaign_id, recipient_id, outcome, attempt_count)
VALUES ($1, $2, 'pending', 0)
ON CONFLICT (campaign_id, recipient_id) DO NOTHING
`

// SeedDeliveryAttempts creates pending ledger rows for the resolved audience.
// Re-seeding after a redelivered dispatch trigger is a no-op for rows that
// already exist.
func (s *Store) SeedDeliveryAttempts(ctx context.Context, campaignID uuid.UUID, recipientIDs []uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlSeedDeliveryAttempts)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, recipientID := range recipientIDs {
		if _, err := stmt.ExecContext(ctx, campaignID, recipientID); err != nil {
			return fmt.Errorf("failed to seed delivery attempt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const sqlGetDeliveryStats = `
SELECT
    COUNT(*) as total,
    COUNT(*) FILTER (WHERE outcome = 'pending') as pending,
    COUNT(*) FILTER (WHERE outcome = 'delivered') as delivered,
    COUNT(*) FILTER (WHERE outcome = 'failed') as failed,
    COUNT(*) FILTER (WHERE opened) as opened,
    COUNT(*) FILTER (WHERE clicked) as clicked
FROM delivery_attempts
WHERE campaign_id = $1
`

// GetDeliveryStats retrieves the ledger-derived aggregate for a campaign
func (s *Store) GetDeliveryStats(ctx context.Context, campaignID uuid.UUID) (DeliveryStats, error) {
	var stats DeliveryStats
	err := s.db.GetContext(ctx, &stats, sqlGetDeliveryStats, campaignID)
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	return stats, nil
}

const sqlListDeliveryAttempts = `
SELECT ` + attemptColumns + `
FROM delivery_attempts
WHERE campaign_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`

// ListDeliveryAttempts retrieves ledger entries for a campaign with pagination
func (s *Store) ListDeliveryAttempts(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]DeliveryAttempt, error) {
	var attempts []DeliveryAttempt
	err := s.db.SelectContext(ctx, &attempts, sqlListDeliveryAttempts, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return attempts, nil
}

const sqlGetPendingRecipientIDs = `
SELECT recipient_id
FROM delivery_attempts
WHERE campaign_id = $1 AND outcome = 'pending'
ORDER BY created_at ASC
`

// GetPendingRecipientIDs retrieves recipients without a terminal outcome yet.
// Used when a dispatch trigger is redelivered mid-campaign so already-settled
// recipients are not contacted twice.
func (s *Store) GetPendingRecipientIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, sqlGetPendingRecipientIDs, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending recipient ids: %w", err)
	}
	return ids, nil
}

const sqlMarkAttemptEngagement = `
UPDATE delivery_attempts
SET opened = opened OR $3,
    clicked = clicked OR $4
WHERE campaign_id = $1 AND recipient_id = $2 AND outcome = 'delivered'
`

// MarkAttemptEngagement records an externally-reported open or click for a
// delivered recipient. Flags are set-once, so redelivered engagement events
// are idempotent.
func (s *Store) MarkAttemptEngagement(ctx context.Context, campaignID, recipientID uuid.UUID, opened, clicked bool) error {
	res, err := s.db.ExecContext(ctx, sqlMarkAttemptEngagement, campaignID, recipientID, opened, clicked)
	if err != nil {
		return fmt.Errorf("failed to mark attempt engagement: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
