// Package engagement ingests externally-reported open and click events and
// folds them into the delivery ledger and campaign aggregates.
package engagement

import (
	"context"
	"errors"
	"fmt"

	"educenter-server/internal/events"
	"educenter-server/internal/observability"
	"educenter-server/internal/store"
	"educenter-server/internal/workers"

	"github.com/google/uuid"
)

// EngagementStore defines the database operations required by Processor
type EngagementStore interface {
	MarkAttemptEngagement(ctx context.Context, campaignID, recipientID uuid.UUID, opened, clicked bool) error
	UpdateCampaignEngagement(ctx context.Context, campaignID uuid.UUID) error
}

// Processor consumes message.opened and message.clicked events reported by
// the channel providers. Marking is an OR-update on the ledger row, so
// redelivered events are harmless.
type Processor struct {
	store  EngagementStore
	logger *observability.Logger
}

func NewProcessor(store EngagementStore, logger *observability.Logger) *Processor {
	return &Processor{
		store:  store,
		logger: logger,
	}
}

// Name implements workers.EventProcessor
func (p *Processor) Name() string {
	return "engagement"
}

// Process handles one engagement event
func (p *Processor) Process(ctx context.Context, event workers.EventMessage) error {
	var opened, clicked bool
	switch event.Type {
	case events.TypeMessageOpened:
		opened = true
	case events.TypeMessageClicked:
		// A click implies the message was opened.
		opened = true
		clicked = true
	default:
		p.logger.Warn(ctx, "unknown engagement event type, skipping",
			observability.Field{Key: "event_type", Value: event.Type})
		return nil
	}

	campaignID, err := uuid.Parse(event.CampaignID)
	if err != nil {
		p.logger.Error(ctx, "engagement event carries invalid campaign id", err)
		return nil
	}

	recipientIDStr, ok := event.Data["recipient_id"].(string)
	if !ok {
		p.logger.Error(ctx, "engagement event missing recipient_id", nil)
		return nil
	}
	recipientID, err := uuid.Parse(recipientIDStr)
	if err != nil {
		p.logger.Error(ctx, "engagement event carries invalid recipient id", err)
		return nil
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "recipient_id", Value: recipientID.String()},
	)

	err = p.store.MarkAttemptEngagement(ctx, campaignID, recipientID, opened, clicked)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No delivered ledger row for this pair: either a stray provider
			// report or the delivery callback lost a race. Drop it.
			p.logger.Warn(ctx, "engagement event for unknown delivery, skipping")
			return nil
		}
		return fmt.Errorf("failed to mark attempt engagement: %w", err)
	}

	if err := p.store.UpdateCampaignEngagement(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to update campaign engagement: %w", err)
	}

	p.logger.Info(ctx, "engagement recorded",
		observability.Field{Key: "opened", Value: opened},
		observability.Field{Key: "clicked", Value: clicked})
	return nil
}
