package channels

import (
	"context"
	"fmt"

	"educenter-server/internal/render"
	"educenter-server/internal/store"

	"github.com/google/uuid"
)

// SystemNotificationStore defines the storage operation required by the
// system channel.
type SystemNotificationStore interface {
	CreateSystemNotification(ctx context.Context, recipientID, campaignID uuid.UUID, subject *string, body string) (store.SystemNotification, error)
}

// SystemSender writes in-app inbox messages instead of calling an external
// provider.
type SystemSender struct {
	store SystemNotificationStore
}

func NewSystemSender(store SystemNotificationStore) *SystemSender {
	return &SystemSender{store: store}
}

func (s *SystemSender) Channel() string {
	return store.ChannelSystem
}

func (s *SystemSender) Send(ctx context.Context, campaignID string, recipient store.Recipient, content render.Content) error {
	id, err := uuid.Parse(campaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign id: %w", err)
	}

	if _, err := s.store.CreateSystemNotification(ctx, recipient.ID, id, content.Subject, content.Body); err != nil {
		return fmt.Errorf("system notification for %s failed: %w", recipient.ID, err)
	}
	return nil
}
