package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const templateColumns = `id, name, channel, subject, body, declared_variables, is_active, usage_count, last_used_at, created_at, updated_at, deleted_at`

// CreateNotificationTemplateParams represents parameters for creating a template
type CreateNotificationTemplateParams struct {
	Name              string
	Channel           string
	Subject           *string
	Body              string
	DeclaredVariables StringArray
	IsActive          bool
}

const sqlCreateNotificationTemplate = `
INSERT INTO notification_templates (name, channel, subject, body, declared_variables, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + templateColumns

// CreateNotificationTemplate creates a new notification template
func (s *Store) CreateNotificationTemplate(ctx context.Context, params CreateNotificationTemplateParams) (NotificationTemplate, error) {
	var tmpl NotificationTemplate
	err := s.db.GetContext(ctx, &tmpl, sqlCreateNotificationTemplate,
		params.Name,
		params.Channel,
		params.Subject,
		params.Body,
		params.DeclaredVariables,
		params.IsActive)
	if err != nil {
		return NotificationTemplate{}, fmt.Errorf("failed to create notification template: %w", err)
	}
	return tmpl, nil
}

const sqlGetNotificationTemplateByID = `
SELECT ` + templateColumns + `
FROM notification_templates
WHERE id = $1 AND deleted_at IS NULL
`

// GetNotificationTemplateByID retrieves a template by ID
func (s *Store) GetNotificationTemplateByID(ctx context.Context, templateID uuid.UUID) (NotificationTemplate, error) {
	var tmpl NotificationTemplate
	err := s.db.GetContext(ctx, &tmpl, sqlGetNotificationTemplateByID, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationTemplate{}, ErrNotFound
		}
		return NotificationTemplate{}, fmt.Errorf("failed to get notification template: %w", err)
	}
	return tmpl, nil
}

const sqlListNotificationTemplates = `
SELECT ` + templateColumns + `
FROM notification_templates
WHERE deleted_at IS NULL AND ($1::text IS NULL OR channel = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// ListNotificationTemplates retrieves templates with an optional channel filter
func (s *Store) ListNotificationTemplates(ctx context.Context, channel *string, limit, offset int) ([]NotificationTemplate, error) {
	var templates []NotificationTemplate
	err := s.db.SelectContext(ctx, &templates, sqlListNotificationTemplates, channel, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification templates: %w", err)
	}
	return templates, nil
}

// UpdateNotificationTemplateParams represents parameters for a partial update.
// Channel is deliberately absent: it is immutable after creation.
type UpdateNotificationTemplateParams struct {
	Name              *string
	Subject           *string
	Body              *string
	DeclaredVariables StringArray
}

const sqlUpdateNotificationTemplate = `
UPDATE notification_templates
SET name = COALESCE($2, name),
    subject = COALESCE($3, subject),
    body = COALESCE($4, body),
    declared_variables = COALESCE($5, declared_variables),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + templateColumns

// UpdateNotificationTemplate applies a partial update to a template
func (s *Store) UpdateNotificationTemplate(ctx context.Context, templateID uuid.UUID, params UpdateNotificationTemplateParams) (NotificationTemplate, error) {
	var tmpl NotificationTemplate
	err := s.db.GetContext(ctx, &tmpl, sqlUpdateNotificationTemplate,
		templateID,
		params.Name,
		params.Subject,
		params.Body,
		params.DeclaredVariables)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationTemplate{}, ErrNotFound
		}
		return NotificationTemplate{}, fmt.Errorf("failed to update notification template: %w", err)
	}
	return tmpl, nil
}

const sqlSetNotificationTemplateActive = `
UPDATE notification_templates
SET is_active = $2,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + templateColumns

// SetNotificationTemplateActive toggles the active flag on a template
func (s *Store) SetNotificationTemplateActive(ctx context.Context, templateID uuid.UUID, isActive bool) (NotificationTemplate, error) {
	var tmpl NotificationTemplate
	err := s.db.GetContext(ctx, &tmpl, sqlSetNotificationTemplateActive, templateID, isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationTemplate{}, ErrNotFound
		}
		return NotificationTemplate{}, fmt.Errorf("failed to set notification template active flag: %w", err)
	}
	return tmpl, nil
}

const sqlDeleteNotificationTemplate = `
UPDATE notification_templates
SET deleted_at = CURRENT_TIMESTAMP
WHERE id = $1 AND deleted_at IS NULL
`

// DeleteNotificationTemplate soft deletes a template. Callers must check for
// referencing non-terminal campaigns first.
func (s *Store) DeleteNotificationTemplate(ctx context.Context, templateID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteNotificationTemplate, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete notification template: %w", err)
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

const sqlIncrementTemplateUsage = `
UPDATE notification_templates
SET usage_count = usage_count + 1,
    last_used_at = CURRENT_TIMESTAMP,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// IncrementTemplateUsage bumps the usage counter after a campaign reaches a
// successful terminal state. Works on soft-deleted templates too: history
// accounting outlives the template.
func (s *Store) IncrementTemplateUsage(ctx context.Context, templateID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, sqlIncrementTemplateUsage, templateID)
	if err != nil {
		return fmt.Errorf("failed to increment template usage: %w", err)
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

const sqlCountLiveCampaignsByTemplate = `
SELECT COUNT(*)
FROM notification_campaigns
WHERE template_id = $1 AND status IN ('scheduled', 'sending')
`

// CountLiveCampaignsByTemplate counts campaigns that still hold a live
// reference to the template. Draft and terminal campaigns carry their own
// content snapshot and do not block deletion.
func (s *Store) CountLiveCampaignsByTemplate(ctx context.Context, templateID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, sqlCountLiveCampaignsByTemplate, templateID)
	if err != nil {
		return 0, fmt.Errorf("failed to count campaigns for template: %w", err)
	}
	return count, nil
}
