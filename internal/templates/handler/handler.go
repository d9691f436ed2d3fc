package handler

import (
	"errors"
	"net/http"
	"strconv"

	"educenter-server/internal/apierrors"
	"educenter-server/internal/observability"
	"educenter-server/internal/templates/processor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.TemplateProcessor
	logger    *observability.Logger
}

func New(processor processor.TemplateProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// CreateTemplateRequest represents the HTTP request for creating a template
type CreateTemplateRequest struct {
	Name              string   `json:"name" binding:"required,max=255"`
	Channel           string   `json:"channel" binding:"required,oneof=email sms push system"`
	Subject           *string  `json:"subject"`
	Body              string   `json:"body" binding:"required"`
	DeclaredVariables []string `json:"declared_variables"`
	IsActive          *bool    `json:"is_active"`
}

// HandleCreateTemplate handles POST /api/v1/templates
func (h *Handler) HandleCreateTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid request body")
		return
	}

	tmpl, err := h.processor.CreateTemplate(ctx, processor.CreateTemplateRequest{
		Name:              req.Name,
		Channel:           req.Channel,
		Subject:           req.Subject,
		Body:              req.Body,
		DeclaredVariables: req.DeclaredVariables,
		IsActive:          req.IsActive,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tmpl)
}

// HandleGetTemplate handles GET /api/v1/templates/:template_id
func (h *Handler) HandleGetTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	templateID, ok := h.templateID(c)
	if !ok {
		return
	}

	tmpl, err := h.processor.GetTemplate(ctx, templateID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tmpl)
}

// HandleListTemplates handles GET /api/v1/templates
func (h *Handler) HandleListTemplates(c *gin.Context) {
	ctx := c.Request.Context()

	var channel *string
	if channelStr := c.Query("channel"); channelStr != "" {
		channel = &channelStr
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	templates, err := h.processor.ListTemplates(ctx, channel, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// UpdateTemplateRequest represents the HTTP request for a partial update
type UpdateTemplateRequest struct {
	Name              *string  `json:"name"`
	Channel           *string  `json:"channel"`
	Subject           *string  `json:"subject"`
	Body              *string  `json:"body"`
	DeclaredVariables []string `json:"declared_variables"`
}

// HandleUpdateTemplate handles PATCH /api/v1/templates/:template_id
func (h *Handler) HandleUpdateTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	templateID, ok := h.templateID(c)
	if !ok {
		return
	}

	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid request body")
		return
	}

	tmpl, err := h.processor.UpdateTemplate(ctx, templateID, processor.UpdateTemplateRequest{
		Name:              req.Name,
		Channel:           req.Channel,
		Subject:           req.Subject,
		Body:              req.Body,
		DeclaredVariables: req.DeclaredVariables,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tmpl)
}

// HandleActivateTemplate handles POST /api/v1/templates/:template_id/activate
func (h *Handler) HandleActivateTemplate(c *gin.Context) {
	h.setActive(c, true)
}

// HandleDeactivateTemplate handles POST /api/v1/templates/:template_id/deactivate
func (h *Handler) HandleDeactivateTemplate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, isActive bool) {
	ctx := c.Request.Context()

	templateID, ok := h.templateID(c)
	if !ok {
		return
	}

	tmpl, err := h.processor.SetTemplateActive(ctx, templateID, isActive)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tmpl)
}

// HandleDeleteTemplate handles DELETE /api/v1/templates/:template_id
func (h *Handler) HandleDeleteTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	templateID, ok := h.templateID(c)
	if !ok {
		return
	}

	if err := h.processor.DeleteTemplate(ctx, templateID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PreviewTemplateRequest carries the variables for a dry-run render
type PreviewTemplateRequest struct {
	Variables map[string]string `json:"variables"`
}

// HandlePreviewTemplate handles POST /api/v1/templates/:template_id/preview
func (h *Handler) HandlePreviewTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	templateID, ok := h.templateID(c)
	if !ok {
		return
	}

	var req PreviewTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid request body")
		return
	}

	preview, err := h.processor.PreviewTemplate(ctx, templateID, req.Variables)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject":                 preview.Subject,
		"body":                    preview.Body,
		"missing_variable":        preview.MissingVariable,
		"undeclared_placeholders": preview.UndeclaredPlaceholders,
		"unused_variables":        preview.UnusedVariables,
	})
}

func (h *Handler) templateID(c *gin.Context) (uuid.UUID, bool) {
	templateID, err := uuid.Parse(c.Param("template_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_TEMPLATE_ID", "invalid template id")
		return uuid.Nil, false
	}
	return templateID, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrTemplateNotFound):
		apierrors.NotFound(c, "template not found")
	case errors.Is(err, processor.ErrInvalidChannel):
		apierrors.BadRequest(c, "INVALID_CHANNEL", "invalid channel")
	case errors.Is(err, processor.ErrInvalidTemplate):
		apierrors.BadRequest(c, "INVALID_TEMPLATE", "name and body are required; email templates need a subject")
	case errors.Is(err, processor.ErrChannelImmutable):
		apierrors.BadRequest(c, "CHANNEL_IMMUTABLE", "template channel cannot be changed after creation")
	case errors.Is(err, processor.ErrTemplateReferenced):
		apierrors.Conflict(c, "TEMPLATE_REFERENCED", "template is referenced by a scheduled or sending campaign")
	default:
		apierrors.InternalError(c, err)
	}
}
