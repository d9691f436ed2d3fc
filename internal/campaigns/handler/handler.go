package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"educenter-server/internal/apierrors"
	"educenter-server/internal/audience"
	"educenter-server/internal/campaigns/processor"
	"educenter-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.CampaignProcessor
	logger    *observability.Logger
}

func New(processor processor.CampaignProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// SelectorRequest is the JSON shape of a recipient selector
type SelectorRequest struct {
	Kind      string   `json:"kind" binding:"required,oneof=all role course individual"`
	Roles     []string `json:"roles"`
	CourseIDs []string `json:"course_ids"`
	UserIDs   []string `json:"user_ids"`
}

// CreateCampaignRequest represents the HTTP request for creating a campaign
type CreateCampaignRequest struct {
	TemplateID   string            `json:"template_id" binding:"required,uuid"`
	Selector     SelectorRequest   `json:"selector" binding:"required"`
	Variables    map[string]string `json:"variables"`
	ScheduleMode string            `json:"schedule_mode" binding:"required,oneof=now scheduled"`
	ScheduledAt  *time.Time        `json:"scheduled_at"`
}

// HandleCreateCampaign handles POST /api/v1/campaigns
func (h *Handler) HandleCreateCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid request body")
		return
	}

	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_TEMPLATE_ID", "invalid template id")
		return
	}

	campaign, err := h.processor.CreateCampaign(ctx, processor.CreateCampaignRequest{
		TemplateID: templateID,
		Selector: audience.Selector{
			Kind:      req.Selector.Kind,
			Roles:     req.Selector.Roles,
			CourseIDs: req.Selector.CourseIDs,
			UserIDs:   req.Selector.UserIDs,
		},
		Variables:    req.Variables,
		ScheduleMode: req.ScheduleMode,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// HandleGetCampaign handles GET /api/v1/campaigns/:campaign_id
func (h *Handler) HandleGetCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.campaignID(c)
	if !ok {
		return
	}

	campaign, err := h.processor.GetCampaign(ctx, campaignID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// HandleListCampaigns handles GET /api/v1/campaigns
func (h *Handler) HandleListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	var status *string
	if statusStr := c.Query("status"); statusStr != "" {
		status = &statusStr
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	campaigns, err := h.processor.ListCampaigns(ctx, status, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// HandleCancelCampaign handles POST /api/v1/campaigns/:campaign_id/cancel
func (h *Handler) HandleCancelCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.campaignID(c)
	if !ok {
		return
	}

	campaign, err := h.processor.CancelCampaign(ctx, campaignID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// HandleGetCampaignStats handles GET /api/v1/campaigns/:campaign_id/stats
func (h *Handler) HandleGetCampaignStats(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.campaignID(c)
	if !ok {
		return
	}

	stats, err := h.processor.GetCampaignStats(ctx, campaignID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// HandleListDeliveryAttempts handles GET /api/v1/campaigns/:campaign_id/attempts
func (h *Handler) HandleListDeliveryAttempts(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.campaignID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, err := h.processor.ListDeliveryAttempts(ctx, campaignID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// HandleGetCampaignEvents handles GET /api/v1/campaigns/:campaign_id/events
func (h *Handler) HandleGetCampaignEvents(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.campaignID(c)
	if !ok {
		return
	}

	campaignEvents, err := h.processor.GetCampaignEvents(ctx, campaignID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": campaignEvents})
}

func (h *Handler) campaignID(c *gin.Context) (uuid.UUID, bool) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CAMPAIGN_ID", "invalid campaign id")
		return uuid.Nil, false
	}
	return campaignID, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrCampaignNotFound):
		apierrors.NotFound(c, "campaign not found")
	case errors.Is(err, processor.ErrTemplateNotFound):
		apierrors.NotFound(c, "template not found")
	case errors.Is(err, processor.ErrTemplateInactive):
		apierrors.BadRequest(c, "TEMPLATE_INACTIVE", "template is inactive and cannot start a campaign")
	case errors.Is(err, processor.ErrInvalidSelector):
		apierrors.BadRequest(c, "INVALID_SELECTOR", "recipient selector is invalid")
	case errors.Is(err, processor.ErrInvalidSchedule):
		apierrors.BadRequest(c, "INVALID_SCHEDULE", "scheduled campaigns need a future scheduled_at; immediate campaigns must not set one")
	case errors.Is(err, processor.ErrCampaignFinished):
		apierrors.Conflict(c, "CAMPAIGN_FINISHED", "campaign already reached a terminal state")
	case errors.Is(err, processor.ErrDispatchTriggerLost):
		apierrors.ServiceUnavailable(c, "DISPATCH_TRIGGER_FAILED", "campaign created but could not be queued for dispatch", err)
	default:
		apierrors.InternalError(c, err)
	}
}
