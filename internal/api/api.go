package api

import (
	"net/http"

	campaignHandler "educenter-server/internal/campaigns/handler"
	templateHandler "educenter-server/internal/templates/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router          *gin.RouterGroup
	templateHandler templateHandler.Handler
	campaignHandler campaignHandler.Handler
}

func New(router *gin.RouterGroup, templateHandler templateHandler.Handler, campaignHandler campaignHandler.Handler) API {
	return API{
		router:          router,
		templateHandler: templateHandler,
		campaignHandler: campaignHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api/v1")
	{
		templateGroup := apiGroup.Group("/templates")
		templateGroup.POST("", a.templateHandler.HandleCreateTemplate)
		templateGroup.GET("", a.templateHandler.HandleListTemplates)
		templateGroup.GET("/:template_id", a.templateHandler.HandleGetTemplate)
		templateGroup.PATCH("/:template_id", a.templateHandler.HandleUpdateTemplate)
		templateGroup.DELETE("/:template_id", a.templateHandler.HandleDeleteTemplate)
		templateGroup.POST("/:template_id/activate", a.templateHandler.HandleActivateTemplate)
		templateGroup.POST("/:template_id/deactivate", a.templateHandler.HandleDeactivateTemplate)
		templateGroup.POST("/:template_id/preview", a.templateHandler.HandlePreviewTemplate)

		campaignGroup := apiGroup.Group("/campaigns")
		campaignGroup.POST("", a.campaignHandler.HandleCreateCampaign)
		campaignGroup.GET("", a.campaignHandler.HandleListCampaigns)
		campaignGroup.GET("/:campaign_id", a.campaignHandler.HandleGetCampaign)
		campaignGroup.POST("/:campaign_id/cancel", a.campaignHandler.HandleCancelCampaign)
		campaignGroup.GET("/:campaign_id/stats", a.campaignHandler.HandleGetCampaignStats)
		campaignGroup.GET("/:campaign_id/attempts", a.campaignHandler.HandleListDeliveryAttempts)
		campaignGroup.GET("/:campaign_id/events", a.campaignHandler.HandleGetCampaignEvents)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
