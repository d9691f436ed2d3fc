package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const recipientColumns = `u.id, u.email, u.phone, u.device_token, u.first_name, u.last_name, u.role, u.is_active`

const sqlListActiveRecipients = `
SELECT ` + recipientColumns + `
FROM users u
WHERE u.is_active
`

// ListActiveRecipients retrieves every active user in the directory
func (s *Store) ListActiveRecipients(ctx context.Context) ([]Recipient, error) {
	var recipients []Recipient
	err := s.db.SelectContext(ctx, &recipients, sqlListActiveRecipients)
	if err != nil {
		return nil, fmt.Errorf("failed to list active recipients: %w", err)
	}
	return recipients, nil
}

const sqlListRecipientsByRoles = `
SELECT ` + recipientColumns + `
FROM users u
WHERE u.is_active AND u.role = ANY($1::text[])
`

// ListRecipientsByRoles retrieves active users holding any of the given roles
func (s *Store) ListRecipientsByRoles(ctx context.Context, roles []string) ([]Recipient, error) {
	var recipients []Recipient
	err := s.db.SelectContext(ctx, &recipients, sqlListRecipientsByRoles, StringArray(roles))
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients by roles: %w", err)
	}
	return recipients, nil
}

const sqlListRecipientsByCourses = `
SELECT DISTINCT ` + recipientColumns + `
FROM users u
JOIN course_enrollments e ON e.user_id = u.id
WHERE u.is_active AND e.course_id = ANY($1::uuid[])
`

// ListRecipientsByCourses retrieves active users enrolled in any of the given
// courses
func (s *Store) ListRecipientsByCourses(ctx context.Context, courseIDs []string) ([]Recipient, error) {
	var recipients []Recipient
	err := s.db.SelectContext(ctx, &recipients, sqlListRecipientsByCourses, StringArray(courseIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients by courses: %w", err)
	}
	return recipients, nil
}

const sqlGetRecipientsByIDs = `
SELECT ` + recipientColumns + `
FROM users u
WHERE u.is_active AND u.id = ANY($1::uuid[])
`

// GetRecipientsByIDs retrieves the active users among the given ids. Unknown
// or inactive ids are silently dropped.
func (s *Store) GetRecipientsByIDs(ctx context.Context, userIDs []string) ([]Recipient, error) {
	var recipients []Recipient
	err := s.db.SelectContext(ctx, &recipients, sqlGetRecipientsByIDs, StringArray(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients by ids: %w", err)
	}
	return recipients, nil
}

const sqlCreateSystemNotification = `
INSERT INTO system_notifications (recipient_id, campaign_id, subject, body)
VALUES ($1, $2, $3, $4)
RETURNING id, recipient_id, campaign_id, subject, body, read_at, created_at
`

// CreateSystemNotification writes an in-app inbox message for a recipient
func (s *Store) CreateSystemNotification(ctx context.Context, recipientID, campaignID uuid.UUID, subject *string, body string) (SystemNotification, error) {
	var notification SystemNotification
	err := s.db.GetContext(ctx, &notification, sqlCreateSystemNotification, recipientID, campaignID, subject, body)
	if err != nil {
		return SystemNotification{}, fmt.Errorf("failed to create system notification: %w", err)
	}
	return notification, nil
}
