package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const campaignColumns = `id, template_id, channel, subject, body, variables, selector_kind, selector_roles, selector_course_ids, selector_user_ids, schedule_mode, scheduled_at, status, resolved_recipient_count, delivered_count, failed_count, open_rate, click_rate, error_message, created_at, updated_at, sent_at`

// CreateCampaignParams represents parameters for creating a campaign.
// Channel, subject and body are the template snapshot taken at creation.
type CreateCampaignParams struct {
	TemplateID        uuid.UUID
	Channel           string
	Subject           *string
	Body              string
	Variables         JSONB
	SelectorKind      string
	SelectorRoles     StringArray
	SelectorCourseIDs StringArray
	SelectorUserIDs   StringArray
	ScheduleMode      string
	ScheduledAt       *time.Time
}

const sqlCreateCampaign = `
INSERT INTO notification_campaigns (template_id, channel, subject, body, variables, selector_kind, selector_roles, selector_course_ids, selector_user_ids, schedule_mode, scheduled_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'draft')
RETURNING ` + campaignColumns

// CreateCampaign creates a new campaign in draft status
func (s *Store) CreateCampaign(ctx context.Context, params CreateCampaignParams) (NotificationCampaign, error) {
	var campaign NotificationCampaign
	err := s.db.GetContext(ctx, &campaign, sqlCreateCampaign,
		params.TemplateID,
		params.Channel,
		params.Subject,
		params.Body,
		params.Variables,
		params.SelectorKind,
		params.SelectorRoles,
		params.SelectorCourseIDs,
		params.SelectorUserIDs,
		params.ScheduleMode,
		params.ScheduledAt)
	if err != nil {
		return NotificationCampaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignByID = `
SELECT ` + campaignColumns + `
FROM notification_campaigns
WHERE id = $1
`

// GetCampaignByID retrieves a campaign by ID
func (s *Store) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (NotificationCampaign, error) {
	var campaign NotificationCampaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByID, campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationCampaign{}, ErrNotFound
		}
		return NotificationCampaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

const sqlListCampaigns = `
SELECT ` + campaignColumns + `
FROM notification_campaigns
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// ListCampaigns retrieves campaigns with an optional status filter
func (s *Store) ListCampaigns(ctx context.Context, status *string, limit, offset int) ([]NotificationCampaign, error) {
	var campaigns []NotificationCampaign
	err := s.db.SelectContext(ctx, &campaigns, sqlListCampaigns, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

const sqlTransitionCampaignStatus = `
UPDATE notification_campaigns AS c
SET status = $3,
    error_message = COALESCE($4, c.error_message),
    sent_at = CASE WHEN $3 = 'sending' AND c.sent_at IS NULL THEN CURRENT_TIMESTAMP ELSE c.sent_at END,
    updated_at = CURRENT_TIMESTAMP
FROM notification_campaigns AS old
WHERE c.id = $1 AND old.id = c.id AND c.status = ANY($2::text[])
RETURNING c.*, old.status AS previous_status
`

const sqlAppendCampaignEvent = `
INSERT INTO campaign_events (campaign_id, from_status, to_status, reason)
VALUES ($1, $2, $3, $4)
`

type transitionedCampaign struct {
	NotificationCampaign
	PreviousStatus string `db:"previous_status"`
}

// TransitionCampaignStatus atomically advances a campaign from one of the
// given statuses to the target status and appends the transition to the
// campaign's event history in the same transaction. Returns ErrStaleStatus
// when the campaign exists but is not in any of the expected statuses, so
// callers can treat redelivered triggers as no-ops.
func (s *Store) TransitionCampaignStatus(ctx context.Context, campaignID uuid.UUID, from []string, to string, reason *string) (NotificationCampaign, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NotificationCampaign{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row transitionedCampaign
	err = tx.GetContext(ctx, &row, sqlTransitionCampaignStatus, campaignID, StringArray(from), to, reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing campaign from a lost transition race.
			var exists bool
			if checkErr := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM notification_campaigns WHERE id = $1)`, campaignID); checkErr == nil && exists {
				return NotificationCampaign{}, ErrStaleStatus
			}
			return NotificationCampaign{}, ErrNotFound
		}
		return NotificationCampaign{}, fmt.Errorf("failed to transition campaign status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlAppendCampaignEvent, campaignID, row.PreviousStatus, to, reason); err != nil {
		return NotificationCampaign{}, fmt.Errorf("failed to append campaign event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return NotificationCampaign{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return row.NotificationCampaign, nil
}

const sqlSetCampaignResolvedCount = `
UPDATE notification_campaigns
SET resolved_recipient_count = $2,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND resolved_recipient_count IS NULL
`

// SetCampaignResolvedCount freezes the audience size for a campaign. The
// count can only be written once; a second write is a no-op.
func (s *Store) SetCampaignResolvedCount(ctx context.Context, campaignID uuid.UUID, count int) error {
	_, err := s.db.ExecContext(ctx, sqlSetCampaignResolvedCount, campaignID, count)
	if err != nil {
		return fmt.Errorf("failed to set resolved recipient count: %w", err)
	}
	return nil
}

const sqlSyncCampaignCounters = `
UPDATE notification_campaigns
SET delivered_count = stats.delivered,
    failed_count = stats.failed,
    updated_at = CURRENT_TIMESTAMP
FROM (
    SELECT
        COUNT(*) FILTER (WHERE outcome = 'delivered') AS delivered,
        COUNT(*) FILTER (WHERE outcome = 'failed') AS failed
    FROM delivery_attempts
    WHERE campaign_id = $1
) AS stats
WHERE id = $1
`

// SyncCampaignCounters recomputes the campaign's delivered/failed counters
// from the delivery ledger. Counters are never incremented independently so
// they cannot drift from the ledger's ground truth.
func (s *Store) SyncCampaignCounters(ctx context.Context, campaignID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlSyncCampaignCounters, campaignID)
	if err != nil {
		return fmt.Errorf("failed to sync campaign counters: %w", err)
	}
	return nil
}

const sqlUpdateCampaignEngagement = `
UPDATE notification_campaigns
SET open_rate = stats.open_rate,
    click_rate = stats.click_rate,
    updated_at = CURRENT_TIMESTAMP
FROM (
    SELECT
        CASE WHEN COUNT(*) FILTER (WHERE outcome = 'delivered') = 0 THEN 0
             ELSE ROUND(100.0 * COUNT(*) FILTER (WHERE opened) / COUNT(*) FILTER (WHERE outcome = 'delivered'), 2)
        END AS open_rate,
        CASE WHEN COUNT(*) FILTER (WHERE outcome = 'delivered') = 0 THEN 0
             ELSE ROUND(100.0 * COUNT(*) FILTER (WHERE clicked) / COUNT(*) FILTER (WHERE outcome = 'delivered'), 2)
        END AS click_rate
    FROM delivery_attempts
    WHERE campaign_id = $1
) AS stats
WHERE id = $1 AND channel IN ('email', 'push')
`

// UpdateCampaignEngagement recomputes open/click rates from ledger engagement
// flags. Only email and push campaigns carry engagement rates.
func (s *Store) UpdateCampaignEngagement(ctx context.Context, campaignID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlUpdateCampaignEngagement, campaignID)
	if err != nil {
		return fmt.Errorf("failed to update campaign engagement: %w", err)
	}
	return nil
}

const sqlGetDueScheduledCampaigns = `
SELECT ` + campaignColumns + `
FROM notification_campaigns
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
`

// GetDueScheduledCampaigns retrieves scheduled campaigns whose fire time has
// passed.
func (s *Store) GetDueScheduledCampaigns(ctx context.Context, beforeTime time.Time) ([]NotificationCampaign, error) {
	var campaigns []NotificationCampaign
	err := s.db.SelectContext(ctx, &campaigns, sqlGetDueScheduledCampaigns, beforeTime)
	if err != nil {
		return nil, fmt.Errorf("failed to get due scheduled campaigns: %w", err)
	}
	return campaigns, nil
}

const sqlGetCampaignEvents = `
SELECT id, campaign_id, from_status, to_status, reason, created_at
FROM campaign_events
WHERE campaign_id = $1
ORDER BY created_at ASC
`

// GetCampaignEvents retrieves the transition history for a campaign
func (s *Store) GetCampaignEvents(ctx context.Context, campaignID uuid.UUID) ([]CampaignEvent, error) {
	var events []CampaignEvent
	err := s.db.SelectContext(ctx, &events, sqlGetCampaignEvents, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign events: %w", err)
	}
	return events, nil
}
