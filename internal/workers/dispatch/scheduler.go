package dispatch

import (
	"context"
	"fmt"
	"time"

	"educenter-server/internal/observability"
	"educenter-server/internal/store"

	"github.com/google/uuid"
)

// SchedulerStore defines the database operations required by Scheduler
type SchedulerStore interface {
	GetDueScheduledCampaigns(ctx context.Context, beforeTime time.Time) ([]store.NotificationCampaign, error)
}

// DispatchPublisher triggers the dispatch worker for a campaign
type DispatchPublisher interface {
	PublishCampaignDispatch(ctx context.Context, campaignID uuid.UUID) error
}

// Scheduler periodically checks for scheduled campaigns whose time has come
// and publishes their dispatch trigger. The dispatch processor performs the
// scheduled -> sending transition, so a trigger published twice (scheduler
// restart, slow poll overlap) is harmless.
type Scheduler struct {
	store         SchedulerStore
	publisher     DispatchPublisher
	logger        *observability.Logger
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewScheduler creates a new campaign scheduler
func NewScheduler(
	store SchedulerStore,
	publisher DispatchPublisher,
	logger *observability.Logger,
	checkInterval time.Duration,
) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &Scheduler{
		store:         store,
		publisher:     publisher,
		logger:        logger,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info(ctx, fmt.Sprintf("Starting campaign scheduler with %v interval", s.checkInterval))

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkDueCampaigns(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Campaign scheduler stopping: context cancelled")
			return
		case <-s.stopChan:
			s.logger.Info(ctx, "Campaign scheduler stopping: stop signal received")
			return
		case <-ticker.C:
			s.checkDueCampaigns(ctx)
		}
	}
}

// Stop signals the scheduler to stop
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// checkDueCampaigns finds scheduled campaigns whose scheduled_at has passed
// and publishes a dispatch trigger for each
func (s *Scheduler) checkDueCampaigns(ctx context.Context) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operation", Value: "check_due_campaigns"},
	)

	campaigns, err := s.store.GetDueScheduledCampaigns(ctx, time.Now())
	if err != nil {
		s.logger.Error(ctx, "Failed to get due scheduled campaigns", err)
		return
	}

	if len(campaigns) == 0 {
		return
	}

	s.logger.Info(ctx, fmt.Sprintf("Found %d scheduled campaigns ready to dispatch", len(campaigns)))

	for _, campaign := range campaigns {
		campaignCtx := observability.WithFields(ctx,
			observability.Field{Key: "campaign_id", Value: campaign.ID.String()},
		)

		if err := s.publisher.PublishCampaignDispatch(campaignCtx, campaign.ID); err != nil {
			// The campaign stays scheduled; the next tick retries.
			s.logger.Error(campaignCtx, "Failed to publish dispatch trigger", err)
			continue
		}

		s.logger.Info(campaignCtx, "Triggered scheduled campaign")
	}
}
