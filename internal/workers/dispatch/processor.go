// Package dispatch drives a campaign from sending to its terminal state:
// it resolves the audience, renders per-recipient content, pushes batches
// through the channel senders and records every outcome in the delivery
// ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"educenter-server/internal/audience"
	"educenter-server/internal/channels"
	"educenter-server/internal/config"
	"educenter-server/internal/observability"
	"educenter-server/internal/render"
	"educenter-server/internal/store"
	"educenter-server/internal/workers"

	"github.com/google/uuid"
)

// lockTTL bounds how long a crashed worker can block re-dispatch of its
// campaign. Redelivery of the dispatch event resumes pending recipients.
const lockTTL = 10 * time.Minute

// CampaignDispatchStore defines the database operations required by Processor
type CampaignDispatchStore interface {
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.NotificationCampaign, error)
	TransitionCampaignStatus(ctx context.Context, campaignID uuid.UUID, from []string, to string, reason *string) (store.NotificationCampaign, error)
	SetCampaignResolvedCount(ctx context.Context, campaignID uuid.UUID, count int) error
	SeedDeliveryAttempts(ctx context.Context, campaignID uuid.UUID, recipientIDs []uuid.UUID) error
	RecordDeliveryAttempt(ctx context.Context, params store.RecordDeliveryAttemptParams) (store.DeliveryAttempt, error)
	GetPendingRecipientIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error)
	GetDeliveryStats(ctx context.Context, campaignID uuid.UUID) (store.DeliveryStats, error)
	SyncCampaignCounters(ctx context.Context, campaignID uuid.UUID) error
	IncrementTemplateUsage(ctx context.Context, templateID uuid.UUID) error
	GetRecipientsByIDs(ctx context.Context, userIDs []string) ([]store.Recipient, error)
}

// AudienceResolver resolves a selector into concrete recipients
type AudienceResolver interface {
	Resolve(ctx context.Context, selector audience.Selector) ([]store.Recipient, error)
}

// ChannelRegistry routes a rendered message to the right channel sender
type ChannelRegistry interface {
	Send(ctx context.Context, channel, campaignID string, recipient store.Recipient, content render.Content) error
}

// DispatchLocker is the single-writer-per-campaign lock
type DispatchLocker interface {
	AcquireDispatchLock(ctx context.Context, campaignID uuid.UUID, ttl time.Duration) (string, bool, error)
	ReleaseDispatchLock(ctx context.Context, campaignID uuid.UUID, token string) error
}

// Processor consumes campaign.dispatch events and performs the send.
type Processor struct {
	store    CampaignDispatchStore
	resolver AudienceResolver
	registry ChannelRegistry
	locker   DispatchLocker
	cfg      config.DispatchConfig
	logger   *observability.Logger
}

func NewProcessor(
	store CampaignDispatchStore,
	resolver AudienceResolver,
	registry ChannelRegistry,
	locker DispatchLocker,
	cfg config.DispatchConfig,
	logger *observability.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Processor{
		store:    store,
		resolver: resolver,
		registry: registry,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Name implements workers.EventProcessor
func (p *Processor) Name() string {
	return "campaign-dispatch"
}

// Process handles one campaign.dispatch event. The trigger is delivered
// at-least-once, so everything here is idempotent: a campaign that already
// reached a terminal state is left alone, and a campaign stuck in sending
// (worker crash) resumes with its still-pending recipients.
func (p *Processor) Process(ctx context.Context, event workers.EventMessage) error {
	campaignID, err := uuid.Parse(event.CampaignID)
	if err != nil {
		p.logger.Error(ctx, "dispatch event carries invalid campaign id", err)
		// Unparseable events can never succeed; drop them.
		return nil
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()})

	token, acquired, err := p.locker.AcquireDispatchLock(ctx, campaignID, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		p.logger.Info(ctx, "campaign dispatch already in progress elsewhere, skipping")
		return nil
	}
	defer func() {
		if releaseErr := p.locker.ReleaseDispatchLock(ctx, campaignID, token); releaseErr != nil {
			p.logger.Error(ctx, "failed to release dispatch lock", releaseErr)
		}
	}()

	return p.dispatch(ctx, campaignID)
}

func (p *Processor) dispatch(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := p.store.TransitionCampaignStatus(ctx, campaignID,
		[]string{store.CampaignStatusDraft, store.CampaignStatusScheduled},
		store.CampaignStatusSending, nil)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return p.resumeOrSkip(ctx, campaignID)
		}
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn(ctx, "dispatch event for unknown campaign, skipping")
			return nil
		}
		return err
	}

	return p.resolveAndSend(ctx, campaign)
}

// resolveAndSend resolves the audience, seeds the delivery ledger and runs the
// send loop. SetCampaignResolvedCount is write-once and seeding upserts, so
// re-running after a partial first pass is safe.
func (p *Processor) resolveAndSend(ctx context.Context, campaign store.NotificationCampaign) error {
	recipients, err := p.resolver.Resolve(ctx, audience.SelectorFromCampaign(campaign))
	if err != nil {
		if errors.Is(err, audience.ErrEmptyAudience) {
			reason := "selector resolved to an empty audience"
			p.logger.Warn(ctx, "campaign failed: empty audience")
			return p.transitionToFailed(ctx, campaign.ID, reason)
		}
		return err
	}

	if err := p.store.SetCampaignResolvedCount(ctx, campaign.ID, len(recipients)); err != nil {
		return err
	}

	recipientIDs := make([]uuid.UUID, len(recipients))
	for i, recipient := range recipients {
		recipientIDs[i] = recipient.ID
	}
	if err := p.store.SeedDeliveryAttempts(ctx, campaign.ID, recipientIDs); err != nil {
		return err
	}

	p.logger.Info(ctx, "campaign entered sending",
		observability.Field{Key: "recipient_count", Value: len(recipients)})

	return p.sendAndComplete(ctx, campaign, recipients)
}

// resumeOrSkip handles a redelivered dispatch trigger. A campaign still in
// sending lost its worker mid-flight: pick up its pending recipients. Any
// other status means the campaign already ran to completion or was cancelled.
func (p *Processor) resumeOrSkip(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != store.CampaignStatusSending {
		p.logger.Info(ctx, "dispatch trigger for settled campaign, skipping",
			observability.Field{Key: "status", Value: campaign.Status})
		return nil
	}

	pendingIDs, err := p.store.GetPendingRecipientIDs(ctx, campaignID)
	if err != nil {
		return err
	}
	if len(pendingIDs) == 0 {
		stats, err := p.store.GetDeliveryStats(ctx, campaignID)
		if err != nil {
			return err
		}
		if stats.Total == 0 {
			// The previous pass entered sending but died before seeding
			// the ledger. The audience was never resolved, so start over
			// rather than settling a campaign that sent nothing.
			p.logger.Info(ctx, "resuming campaign that died before audience resolution")
			return p.resolveAndSend(ctx, campaign)
		}
		// Every attempt is recorded, only the completion transition is
		// missing.
		return p.complete(ctx, campaign)
	}

	idStrings := make([]string, len(pendingIDs))
	for i, id := range pendingIDs {
		idStrings[i] = id.String()
	}
	recipients, err := p.store.GetRecipientsByIDs(ctx, idStrings)
	if err != nil {
		return err
	}

	p.logger.Info(ctx, "resuming interrupted campaign dispatch",
		observability.Field{Key: "pending_count", Value: len(recipients)})

	return p.sendAndComplete(ctx, campaign, recipients)
}

// sendAndComplete runs the batched send loop and settles the campaign.
// Batches run sequentially; recipients within a batch are sent concurrently.
// The campaign status is rechecked between batches so an operator
// cancellation stops new batches while in-flight sends finish.
func (p *Processor) sendAndComplete(ctx context.Context, campaign store.NotificationCampaign, recipients []store.Recipient) error {
	content := render.Content{Subject: campaign.Subject, Body: campaign.Body}
	campaignVars := variablesFromJSONB(campaign.Variables)

	for start := 0; start < len(recipients); start += p.cfg.BatchSize {
		if start > 0 {
			current, err := p.store.GetCampaignByID(ctx, campaign.ID)
			if err != nil {
				return err
			}
			if current.Status != store.CampaignStatusSending {
				p.logger.Info(ctx, "campaign no longer sending, stopping new batches",
					observability.Field{Key: "status", Value: current.Status})
				return p.store.SyncCampaignCounters(ctx, campaign.ID)
			}
		}

		end := start + p.cfg.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, recipient := range recipients[start:end] {
			wg.Add(1)
			go func(recipient store.Recipient) {
				defer wg.Done()
				p.sendToRecipient(ctx, campaign, recipient, content, campaignVars)
			}(recipient)
		}
		wg.Wait()
	}

	return p.complete(ctx, campaign)
}

// sendToRecipient renders and sends one message, recording the outcome in the
// ledger. Render failures are permanent for this campaign content; send
// failures retry unless the channel reports them as permanent.
func (p *Processor) sendToRecipient(ctx context.Context, campaign store.NotificationCampaign, recipient store.Recipient, content render.Content, campaignVars map[string]string) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "recipient_id", Value: recipient.ID.String()})

	rendered, err := render.Render(content, mergeVariables(campaignVars, recipient))
	if err != nil {
		p.recordOutcome(ctx, campaign.ID, recipient.ID, nil, store.DeliveryOutcomeFailed, 1, err)
		return
	}

	var sendErr error
	attempts := 0
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		sendErr = p.sendOnce(ctx, campaign, recipient, rendered)
		attempts = attempt
		if sendErr == nil {
			break
		}
		if channels.IsPermanent(sendErr) || ctx.Err() != nil {
			break
		}
		if attempt < p.cfg.RetryAttempts && p.cfg.RetryBackoff > 0 {
			time.Sleep(p.cfg.RetryBackoff)
		}
	}

	outcome := store.DeliveryOutcomeDelivered
	if sendErr != nil {
		outcome = store.DeliveryOutcomeFailed
	}
	p.recordOutcome(ctx, campaign.ID, recipient.ID, &rendered, outcome, attempts, sendErr)
}

func (p *Processor) sendOnce(ctx context.Context, campaign store.NotificationCampaign, recipient store.Recipient, rendered render.Content) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	return p.registry.Send(sendCtx, campaign.Channel, campaign.ID.String(), recipient, rendered)
}

func (p *Processor) recordOutcome(ctx context.Context, campaignID, recipientID uuid.UUID, rendered *render.Content, outcome string, attempts int, cause error) {
	params := store.RecordDeliveryAttemptParams{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Outcome:     outcome,
		Attempts:    attempts,
	}
	if rendered != nil {
		params.RenderedSubject = rendered.Subject
		params.RenderedBody = &rendered.Body
	}
	if cause != nil {
		reason := cause.Error()
		params.ErrorReason = &reason
	}

	if _, err := p.store.RecordDeliveryAttempt(ctx, params); err != nil {
		p.logger.Error(ctx, "failed to record delivery attempt", err)
		return
	}
	if cause != nil {
		p.logger.Warn(ctx, "delivery failed",
			observability.Field{Key: "reason", Value: cause.Error()})
	}
}

// complete recomputes the campaign counters from the ledger and settles the
// terminal state: sent when at least one recipient was delivered, failed
// otherwise. Template usage is bumped exactly once, on the transition to
// sent; a concurrent writer winning the transition means someone else
// already settled the campaign.
func (p *Processor) complete(ctx context.Context, campaign store.NotificationCampaign) error {
	if err := p.store.SyncCampaignCounters(ctx, campaign.ID); err != nil {
		return err
	}

	stats, err := p.store.GetDeliveryStats(ctx, campaign.ID)
	if err != nil {
		return err
	}

	if stats.Delivered == 0 {
		reason := "all deliveries failed"
		p.logger.Warn(ctx, "campaign failed: no recipient was delivered")
		return p.transitionToFailed(ctx, campaign.ID, reason)
	}

	_, err = p.store.TransitionCampaignStatus(ctx, campaign.ID,
		[]string{store.CampaignStatusSending}, store.CampaignStatusSent, nil)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil
		}
		return err
	}

	if err := p.store.IncrementTemplateUsage(ctx, campaign.TemplateID); err != nil {
		p.logger.Error(ctx, "failed to increment template usage", err)
	}

	p.logger.Info(ctx, "campaign sent",
		observability.Field{Key: "delivered", Value: stats.Delivered},
		observability.Field{Key: "failed", Value: stats.Failed})
	return nil
}

func (p *Processor) transitionToFailed(ctx context.Context, campaignID uuid.UUID, reason string) error {
	_, err := p.store.TransitionCampaignStatus(ctx, campaignID,
		[]string{store.CampaignStatusSending}, store.CampaignStatusFailed, &reason)
	if errors.Is(err, store.ErrStaleStatus) {
		return nil
	}
	return err
}

// mergeVariables layers the per-recipient built-ins over the campaign-level
// variables. Recipient values win so a campaign cannot spoof a recipient's
// name.
func mergeVariables(campaignVars map[string]string, recipient store.Recipient) map[string]string {
	merged := make(map[string]string, len(campaignVars)+3)
	for k, v := range campaignVars {
		merged[k] = v
	}
	merged["first_name"] = recipient.FirstName
	merged["last_name"] = recipient.LastName
	merged["email"] = recipient.Email
	return merged
}

func variablesFromJSONB(variables store.JSONB) map[string]string {
	result := make(map[string]string, len(variables))
	for k, v := range variables {
		if s, ok := v.(string); ok {
			result[k] = s
			continue
		}
		result[k] = fmt.Sprint(v)
	}
	return result
}
