package channels

import (
	"context"
	"fmt"

	"educenter-server/internal/render"
	"educenter-server/internal/store"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushSender delivers push campaigns through Firebase Cloud Messaging.
type PushSender struct {
	client *messaging.Client
}

func NewPushSender(ctx context.Context, credentialsFile string) (*PushSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	return &PushSender{client: client}, nil
}

func (s *PushSender) Channel() string {
	return store.ChannelPush
}

func (s *PushSender) Send(ctx context.Context, campaignID string, recipient store.Recipient, content render.Content) error {
	if recipient.DeviceToken == nil || *recipient.DeviceToken == "" {
		return fmt.Errorf("recipient %s: %w", recipient.ID, ErrNoDestination)
	}

	title := ""
	if content.Subject != nil {
		title = *content.Subject
	}

	message := &messaging.Message{
		Token: *recipient.DeviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  content.Body,
		},
		Data: map[string]string{
			"campaign_id": campaignID,
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("push send to %s failed: %w", recipient.ID, err)
	}
	return nil
}
