package events

import (
	"context"
	"time"

	"educenter-server/internal/clients/kafka"
	"educenter-server/internal/observability"

	"github.com/google/uuid"
)

// Event types carried on the campaign topics.
const (
	TypeCampaignDispatch = "campaign.dispatch"
	TypeMessageOpened    = "message.opened"
	TypeMessageClicked   = "message.clicked"
)

// Publisher handles publishing domain events to Kafka
type Publisher struct {
	kafkaProducer *kafka.Producer
	logger        *observability.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(kafkaProducer *kafka.Producer, logger *observability.Logger) *Publisher {
	return &Publisher{
		kafkaProducer: kafkaProducer,
		logger:        logger,
	}
}

// PublishCampaignDispatch publishes a campaign.dispatch event. The dispatch
// worker is idempotent, so at-least-once delivery of this trigger is fine.
func (p *Publisher) PublishCampaignDispatch(ctx context.Context, campaignID uuid.UUID) error {
	event := kafka.EventMessage{
		ID:         uuid.New().String(),
		Type:       TypeCampaignDispatch,
		CampaignID: campaignID.String(),
		Data: map[string]interface{}{
			"campaign_id": campaignID.String(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return p.kafkaProducer.PublishEvent(ctx, event)
}
