package channels

import (
	"context"
	"fmt"

	"educenter-server/internal/clients/mail"
	"educenter-server/internal/render"
	"educenter-server/internal/store"
)

// EmailSender delivers email campaigns through Resend.
type EmailSender struct {
	client *mail.ResendClient
	from   string
}

func NewEmailSender(client *mail.ResendClient, from string) *EmailSender {
	return &EmailSender{
		client: client,
		from:   from,
	}
}

func (s *EmailSender) Channel() string {
	return store.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, campaignID string, recipient store.Recipient, content render.Content) error {
	subject := ""
	if content.Subject != nil {
		subject = *content.Subject
	}

	if _, err := s.client.SendEmail(ctx, s.from, recipient.Email, subject, content.Body); err != nil {
		return fmt.Errorf("email send to %s failed: %w", recipient.ID, err)
	}
	return nil
}
