package processor

import (
	"context"
	"errors"
	"time"

	"educenter-server/internal/audience"
	"educenter-server/internal/observability"
	"educenter-server/internal/store"

	"github.com/google/uuid"
)

// CampaignStore defines the database operations required by CampaignProcessor
type CampaignStore interface {
	CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (store.NotificationCampaign, error)
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.NotificationCampaign, error)
	ListCampaigns(ctx context.Context, status *string, limit, offset int) ([]store.NotificationCampaign, error)
	TransitionCampaignStatus(ctx context.Context, campaignID uuid.UUID, from []string, to string, reason *string) (store.NotificationCampaign, error)
	GetCampaignEvents(ctx context.Context, campaignID uuid.UUID) ([]store.CampaignEvent, error)
	GetDeliveryStats(ctx context.Context, campaignID uuid.UUID) (store.DeliveryStats, error)
	ListDeliveryAttempts(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]store.DeliveryAttempt, error)
	GetNotificationTemplateByID(ctx context.Context, templateID uuid.UUID) (store.NotificationTemplate, error)
}

// DispatchPublisher triggers the dispatch worker for a campaign
type DispatchPublisher interface {
	PublishCampaignDispatch(ctx context.Context, campaignID uuid.UUID) error
}

var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrTemplateNotFound    = errors.New("notification template not found")
	ErrTemplateInactive    = errors.New("notification template is inactive")
	ErrInvalidSelector     = errors.New("invalid recipient selector")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrCampaignFinished    = errors.New("campaign already reached a terminal state")
	ErrDispatchTriggerLost = errors.New("campaign created but dispatch trigger failed")
)

type CampaignProcessor struct {
	store     CampaignStore
	publisher DispatchPublisher
	logger    *observability.Logger
}

func New(store CampaignStore, publisher DispatchPublisher, logger *observability.Logger) CampaignProcessor {
	return CampaignProcessor{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	TemplateID   uuid.UUID
	Selector     audience.Selector
	Variables    map[string]string
	ScheduleMode string
	ScheduledAt  *time.Time
}

// CreateCampaign creates a campaign from an active template, snapshotting the
// template content so later edits never change what this campaign sends.
// Immediate campaigns stay in draft and are picked up by the dispatch worker;
// scheduled campaigns move to scheduled and wait for the scheduler.
func (p *CampaignProcessor) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (store.NotificationCampaign, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "template_id", Value: req.TemplateID.String()},
		observability.Field{Key: "selector_kind", Value: req.Selector.Kind},
		observability.Field{Key: "schedule_mode", Value: req.ScheduleMode},
	)

	if err := req.Selector.Validate(); err != nil {
		return store.NotificationCampaign{}, ErrInvalidSelector
	}
	if err := validateSchedule(req.ScheduleMode, req.ScheduledAt); err != nil {
		return store.NotificationCampaign{}, err
	}

	tmpl, err := p.store.GetNotificationTemplateByID(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationCampaign{}, ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to get notification template", err)
		return store.NotificationCampaign{}, err
	}
	if !tmpl.IsActive {
		return store.NotificationCampaign{}, ErrTemplateInactive
	}

	params := store.CreateCampaignParams{
		TemplateID:        tmpl.ID,
		Channel:           tmpl.Channel,
		Subject:           tmpl.Subject,
		Body:              tmpl.Body,
		Variables:         variablesToJSONB(req.Variables),
		SelectorKind:      req.Selector.Kind,
		SelectorRoles:     store.StringArray(req.Selector.Roles),
		SelectorCourseIDs: store.StringArray(req.Selector.CourseIDs),
		SelectorUserIDs:   store.StringArray(req.Selector.UserIDs),
		ScheduleMode:      req.ScheduleMode,
		ScheduledAt:       req.ScheduledAt,
	}

	campaign, err := p.store.CreateCampaign(ctx, params)
	if err != nil {
		p.logger.Error(ctx, "failed to create campaign", err)
		return store.NotificationCampaign{}, err
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaign.ID.String()})

	if req.ScheduleMode == store.ScheduleModeScheduled {
		campaign, err = p.store.TransitionCampaignStatus(ctx, campaign.ID,
			[]string{store.CampaignStatusDraft}, store.CampaignStatusScheduled, nil)
		if err != nil {
			p.logger.Error(ctx, "failed to schedule campaign", err)
			return store.NotificationCampaign{}, err
		}
		p.logger.Info(ctx, "campaign scheduled")
		return campaign, nil
	}

	// mode 'now': the dispatch worker performs the draft -> sending
	// transition, so the campaign row is only a trigger away from sending.
	if err := p.publisher.PublishCampaignDispatch(ctx, campaign.ID); err != nil {
		p.logger.Error(ctx, "failed to publish campaign dispatch event", err)
		return campaign, ErrDispatchTriggerLost
	}

	p.logger.Info(ctx, "campaign created and dispatch triggered")
	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (p *CampaignProcessor) GetCampaign(ctx context.Context, campaignID uuid.UUID) (store.NotificationCampaign, error) {
	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationCampaign{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return store.NotificationCampaign{}, err
	}
	return campaign, nil
}

// ListCampaigns retrieves campaigns, optionally filtered by status
func (p *CampaignProcessor) ListCampaigns(ctx context.Context, status *string, limit, offset int) ([]store.NotificationCampaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	campaigns, err := p.store.ListCampaigns(ctx, status, limit, offset)
	if err != nil {
		p.logger.Error(ctx, "failed to list campaigns", err)
		return nil, err
	}

	if campaigns == nil {
		campaigns = []store.NotificationCampaign{}
	}
	return campaigns, nil
}

// CancelCampaign moves a campaign to cancelled. Draft and scheduled campaigns
// cancel outright; a sending campaign is cancelled cooperatively: the dispatch
// worker notices the status between batches and stops starting new ones.
// Cancelling an already-cancelled campaign is a no-op.
func (p *CampaignProcessor) CancelCampaign(ctx context.Context, campaignID uuid.UUID) (store.NotificationCampaign, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()})

	reason := "cancelled by operator"
	campaign, err := p.store.TransitionCampaignStatus(ctx, campaignID,
		[]string{store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusSending},
		store.CampaignStatusCancelled, &reason)
	if err == nil {
		p.logger.Info(ctx, "campaign cancelled")
		return campaign, nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return store.NotificationCampaign{}, ErrCampaignNotFound
	}
	if !errors.Is(err, store.ErrStaleStatus) {
		p.logger.Error(ctx, "failed to cancel campaign", err)
		return store.NotificationCampaign{}, err
	}

	// The campaign is already terminal. Cancelled is idempotent; sent and
	// failed cannot be unwound.
	campaign, getErr := p.store.GetCampaignByID(ctx, campaignID)
	if getErr != nil {
		return store.NotificationCampaign{}, getErr
	}
	if campaign.Status == store.CampaignStatusCancelled {
		return campaign, nil
	}
	return store.NotificationCampaign{}, ErrCampaignFinished
}

// CampaignStats combines the campaign's frozen counters with the live ledger
// aggregate
type CampaignStats struct {
	Campaign store.NotificationCampaign `json:"campaign"`
	Ledger   store.DeliveryStats        `json:"ledger"`
}

// GetCampaignStats returns aggregate delivery counters for a campaign
func (p *CampaignProcessor) GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (CampaignStats, error) {
	campaign, err := p.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignStats{}, err
	}

	stats, err := p.store.GetDeliveryStats(ctx, campaignID)
	if err != nil {
		p.logger.Error(ctx, "failed to get delivery stats", err)
		return CampaignStats{}, err
	}

	return CampaignStats{Campaign: campaign, Ledger: stats}, nil
}

// ListDeliveryAttempts returns a page of the campaign's delivery ledger
func (p *CampaignProcessor) ListDeliveryAttempts(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]store.DeliveryAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := p.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	attempts, err := p.store.ListDeliveryAttempts(ctx, campaignID, limit, offset)
	if err != nil {
		p.logger.Error(ctx, "failed to list delivery attempts", err)
		return nil, err
	}

	if attempts == nil {
		attempts = []store.DeliveryAttempt{}
	}
	return attempts, nil
}

// GetCampaignEvents returns the campaign's status transition history
func (p *CampaignProcessor) GetCampaignEvents(ctx context.Context, campaignID uuid.UUID) ([]store.CampaignEvent, error) {
	if _, err := p.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	campaignEvents, err := p.store.GetCampaignEvents(ctx, campaignID)
	if err != nil {
		p.logger.Error(ctx, "failed to get campaign events", err)
		return nil, err
	}

	if campaignEvents == nil {
		campaignEvents = []store.CampaignEvent{}
	}
	return campaignEvents, nil
}

func validateSchedule(mode string, at *time.Time) error {
	switch mode {
	case store.ScheduleModeNow:
		if at != nil {
			return ErrInvalidSchedule
		}
	case store.ScheduleModeScheduled:
		if at == nil || !at.After(time.Now()) {
			return ErrInvalidSchedule
		}
	default:
		return ErrInvalidSchedule
	}
	return nil
}

func variablesToJSONB(variables map[string]string) store.JSONB {
	if variables == nil {
		return nil
	}
	jsonb := make(store.JSONB, len(variables))
	for k, v := range variables {
		jsonb[k] = v
	}
	return jsonb
}
