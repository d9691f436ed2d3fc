package channels

import (
	"context"
	"fmt"

	"educenter-server/internal/observability"
	"educenter-server/internal/render"
	"educenter-server/internal/store"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender delivers sms campaigns through Twilio.
type SMSSender struct {
	client *twilio.RestClient
	from   string
	logger *observability.Logger
}

func NewSMSSender(accountSID, authToken, from string, logger *observability.Logger) *SMSSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSSender{
		client: client,
		from:   from,
		logger: logger,
	}
}

func (s *SMSSender) Channel() string {
	return store.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, campaignID string, recipient store.Recipient, content render.Content) error {
	if recipient.Phone == nil || *recipient.Phone == "" {
		return fmt.Errorf("recipient %s: %w", recipient.ID, ErrNoDestination)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(*recipient.Phone)
	params.SetFrom(s.from)
	params.SetBody(content.Body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		s.logger.Error(ctx, "failed to send sms", err,
			observability.Field{Key: "campaign_id", Value: campaignID},
			observability.Field{Key: "recipient_id", Value: recipient.ID.String()})
		return fmt.Errorf("sms send to %s failed: %w", recipient.ID, err)
	}
	return nil
}
