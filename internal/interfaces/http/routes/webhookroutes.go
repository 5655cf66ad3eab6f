package routes

import (
	"github.com/gin-gonic/gin"

	"captionly/internal/interfaces/http/handlers"
)

// WebhookRouteConfig contains dependencies for the provider webhook route.
type WebhookRouteConfig struct {
	WebhookHandler *handlers.WebhookHandler
}

// SetupWebhookRoutes configures the billing provider push endpoint.
// No auth middleware: the request is authenticated by its signature header.
func SetupWebhookRoutes(engine *gin.Engine, cfg *WebhookRouteConfig) {
	engine.POST("/webhook", cfg.WebhookHandler.HandleBillingWebhook)
}
