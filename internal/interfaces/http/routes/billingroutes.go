// Package routes provides HTTP route configurations.
package routes

import (
	"github.com/gin-gonic/gin"

	"captionly/internal/interfaces/http/handlers"
	"captionly/internal/interfaces/http/middleware"
)

// BillingRouteConfig contains dependencies for the billing routes.
type BillingRouteConfig struct {
	BillingHandler *handlers.BillingHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// SetupBillingRoutes configures the checkout and subscription routes.
// Routes: /checkout/*, /subscription*
func SetupBillingRoutes(engine *gin.Engine, cfg *BillingRouteConfig) {
	checkout := engine.Group("/checkout")
	checkout.Use(cfg.AuthMiddleware.RequireAuth())
	{
		checkout.POST("/session", cfg.BillingHandler.CreateCheckoutSession)
		checkout.GET("/verify", cfg.BillingHandler.VerifyCheckoutSession)
		checkout.POST("/verify", cfg.BillingHandler.VerifyCheckoutSession)
	}

	subscription := engine.Group("/subscription")
	subscription.Use(cfg.AuthMiddleware.RequireAuth())
	{
		subscription.GET("", cfg.BillingHandler.GetSubscription)
		subscription.POST("/cancel", cfg.BillingHandler.CancelSubscription)
	}
}
