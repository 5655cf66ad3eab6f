package routes

import (
	"github.com/gin-gonic/gin"

	"captionly/internal/interfaces/http/handlers"
	"captionly/internal/interfaces/http/middleware"
)

// GenerationRouteConfig contains dependencies for generation and usage routes.
type GenerationRouteConfig struct {
	GenerationHandler   *handlers.GenerationHandler
	UsageHandler        *handlers.UsageHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// SetupGenerationRoutes configures the quota-gated generation routes.
// Only /generations carries the request rate limit; the durable monthly
// quota is enforced inside the use case.
func SetupGenerationRoutes(engine *gin.Engine, cfg *GenerationRouteConfig) {
	generations := engine.Group("/generations")
	generations.Use(cfg.AuthMiddleware.RequireAuth())
	if cfg.RateLimitMiddleware != nil {
		generations.Use(cfg.RateLimitMiddleware.LimitByUser())
	}
	{
		generations.POST("", cfg.GenerationHandler.Generate)
	}

	usage := engine.Group("/usage")
	usage.Use(cfg.AuthMiddleware.RequireAuth())
	{
		usage.GET("", cfg.UsageHandler.GetUsage)
	}
}
