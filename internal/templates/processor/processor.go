package processor

import (
	"context"
	"errors"

	"educenter-server/internal/observability"
	"educenter-server/internal/render"
	"educenter-server/internal/store"

	"github.com/google/uuid"
)

// TemplateStore defines the database operations required by TemplateProcessor
type TemplateStore interface {
	CreateNotificationTemplate(ctx context.Context, params store.CreateNotificationTemplateParams) (store.NotificationTemplate, error)
	GetNotificationTemplateByID(ctx context.Context, templateID uuid.UUID) (store.NotificationTemplate, error)
	ListNotificationTemplates(ctx context.Context, channel *string, limit, offset int) ([]store.NotificationTemplate, error)
	UpdateNotificationTemplate(ctx context.Context, templateID uuid.UUID, params store.UpdateNotificationTemplateParams) (store.NotificationTemplate, error)
	SetNotificationTemplateActive(ctx context.Context, templateID uuid.UUID, isActive bool) (store.NotificationTemplate, error)
	DeleteNotificationTemplate(ctx context.Context, templateID uuid.UUID) error
	CountLiveCampaignsByTemplate(ctx context.Context, templateID uuid.UUID) (int, error)
}

var (
	ErrTemplateNotFound   = errors.New("notification template not found")
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrChannelImmutable   = errors.New("template channel cannot be changed")
	ErrTemplateReferenced = errors.New("template is referenced by a scheduled or sending campaign")
)

type TemplateProcessor struct {
	store  TemplateStore
	logger *observability.Logger
}

func New(store TemplateStore, logger *observability.Logger) TemplateProcessor {
	return TemplateProcessor{
		store:  store,
		logger: logger,
	}
}

// CreateTemplateRequest represents a request to create a notification template
type CreateTemplateRequest struct {
	Name              string
	Channel           string
	Subject           *string
	Body              string
	DeclaredVariables []string
	IsActive          *bool
}

// CreateTemplate creates a new notification template
func (p *TemplateProcessor) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (store.NotificationTemplate, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "template_name", Value: req.Name},
		observability.Field{Key: "channel", Value: req.Channel},
	)

	if !isValidChannel(req.Channel) {
		return store.NotificationTemplate{}, ErrInvalidChannel
	}
	if err := validateContent(req.Name, req.Channel, req.Subject, req.Body); err != nil {
		return store.NotificationTemplate{}, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	params := store.CreateNotificationTemplateParams{
		Name:              req.Name,
		Channel:           req.Channel,
		Subject:           req.Subject,
		Body:              req.Body,
		DeclaredVariables: store.StringArray(req.DeclaredVariables),
		IsActive:          isActive,
	}

	tmpl, err := p.store.CreateNotificationTemplate(ctx, params)
	if err != nil {
		p.logger.Error(ctx, "failed to create notification template", err)
		return store.NotificationTemplate{}, err
	}

	p.logger.Info(ctx, "notification template created",
		observability.Field{Key: "template_id", Value: tmpl.ID.String()})
	return tmpl, nil
}

// GetTemplate retrieves a template by ID
func (p *TemplateProcessor) GetTemplate(ctx context.Context, templateID uuid.UUID) (store.NotificationTemplate, error) {
	tmpl, err := p.store.GetNotificationTemplateByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationTemplate{}, ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to get notification template", err)
		return store.NotificationTemplate{}, err
	}
	return tmpl, nil
}

// ListTemplates retrieves templates, optionally filtered by channel
func (p *TemplateProcessor) ListTemplates(ctx context.Context, channel *string, limit, offset int) ([]store.NotificationTemplate, error) {
	if channel != nil && !isValidChannel(*channel) {
		return nil, ErrInvalidChannel
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	templates, err := p.store.ListNotificationTemplates(ctx, channel, limit, offset)
	if err != nil {
		p.logger.Error(ctx, "failed to list notification templates", err)
		return nil, err
	}

	if templates == nil {
		templates = []store.NotificationTemplate{}
	}
	return templates, nil
}

// UpdateTemplateRequest represents a partial update to a template. Channel is
// accepted only so the processor can reject attempts to change it.
type UpdateTemplateRequest struct {
	Name              *string
	Channel           *string
	Subject           *string
	Body              *string
	DeclaredVariables []string
}

// UpdateTemplate applies a partial update to a template
func (p *TemplateProcessor) UpdateTemplate(ctx context.Context, templateID uuid.UUID, req UpdateTemplateRequest) (store.NotificationTemplate, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "template_id", Value: templateID.String()})

	existing, err := p.store.GetNotificationTemplateByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationTemplate{}, ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to get notification template", err)
		return store.NotificationTemplate{}, err
	}

	// In-flight campaigns denormalized the channel at creation, so it can
	// never change afterwards.
	if req.Channel != nil && *req.Channel != existing.Channel {
		return store.NotificationTemplate{}, ErrChannelImmutable
	}

	name := existing.Name
	if req.Name != nil {
		name = *req.Name
	}
	subject := existing.Subject
	if req.Subject != nil {
		subject = req.Subject
	}
	body := existing.Body
	if req.Body != nil {
		body = *req.Body
	}
	if err := validateContent(name, existing.Channel, subject, body); err != nil {
		return store.NotificationTemplate{}, err
	}

	params := store.UpdateNotificationTemplateParams{
		Name:              req.Name,
		Subject:           req.Subject,
		Body:              req.Body,
		DeclaredVariables: store.StringArray(req.DeclaredVariables),
	}

	tmpl, err := p.store.UpdateNotificationTemplate(ctx, templateID, params)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationTemplate{}, ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to update notification template", err)
		return store.NotificationTemplate{}, err
	}

	p.logger.Info(ctx, "notification template updated")
	return tmpl, nil
}

// SetTemplateActive toggles the active flag. Deactivating a template only
// blocks new campaigns; existing campaigns keep their content snapshot.
func (p *TemplateProcessor) SetTemplateActive(ctx context.Context, templateID uuid.UUID, isActive bool) (store.NotificationTemplate, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "template_id", Value: templateID.String()})

	tmpl, err := p.store.SetNotificationTemplateActive(ctx, templateID, isActive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotificationTemplate{}, ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to toggle notification template", err)
		return store.NotificationTemplate{}, err
	}

	p.logger.Info(ctx, "notification template active flag set",
		observability.Field{Key: "is_active", Value: isActive})
	return tmpl, nil
}

// DeleteTemplate soft deletes a template unless a scheduled or sending
// campaign still references it
func (p *TemplateProcessor) DeleteTemplate(ctx context.Context, templateID uuid.UUID) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "template_id", Value: templateID.String()})

	count, err := p.store.CountLiveCampaignsByTemplate(ctx, templateID)
	if err != nil {
		p.logger.Error(ctx, "failed to count campaigns for template", err)
		return err
	}
	if count > 0 {
		return ErrTemplateReferenced
	}

	err = p.store.DeleteNotificationTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		p.logger.Error(ctx, "failed to delete notification template", err)
		return err
	}

	p.logger.Info(ctx, "notification template deleted")
	return nil
}

// TemplatePreview is the result of a dry-run render of a template
type TemplatePreview struct {
	Subject                *string
	Body                   string
	MissingVariable        *string
	UndeclaredPlaceholders []string
	UnusedVariables        []string
}

// PreviewTemplate renders a template against caller-supplied variables without
// sending anything, and reports declared/placeholder mismatches. A missing
// variable is reported in the preview rather than returned as an error so
// authors see lint results alongside the render outcome.
func (p *TemplateProcessor) PreviewTemplate(ctx context.Context, templateID uuid.UUID, variables map[string]string) (TemplatePreview, error) {
	tmpl, err := p.GetTemplate(ctx, templateID)
	if err != nil {
		return TemplatePreview{}, err
	}

	content := render.Content{Subject: tmpl.Subject, Body: tmpl.Body}
	undeclared, unused := render.Lint(content, tmpl.DeclaredVariables)

	preview := TemplatePreview{
		UndeclaredPlaceholders: undeclared,
		UnusedVariables:        unused,
	}

	rendered, err := render.Render(content, variables)
	if err != nil {
		var missing *render.MissingVariableError
		if errors.As(err, &missing) {
			preview.MissingVariable = &missing.Name
			return preview, nil
		}
		p.logger.Error(ctx, "failed to render template preview", err)
		return TemplatePreview{}, err
	}

	preview.Subject = rendered.Subject
	preview.Body = rendered.Body
	return preview, nil
}

func isValidChannel(channel string) bool {
	switch channel {
	case store.ChannelEmail, store.ChannelSMS, store.ChannelPush, store.ChannelSystem:
		return true
	}
	return false
}

func validateContent(name, channel string, subject *string, body string) error {
	if name == "" {
		return ErrInvalidTemplate
	}
	if body == "" {
		return ErrInvalidTemplate
	}
	if channel == store.ChannelEmail && (subject == nil || *subject == "") {
		return ErrInvalidTemplate
	}
	return nil
}
