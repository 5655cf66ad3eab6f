package http

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"captionly/internal/interfaces/http/middleware"
	"captionly/internal/interfaces/http/routes"

	_ "captionly/docs"
)

// setupRouter builds the gin engine and mounts every route group.
func (c *Container) setupRouter() *gin.Engine {
	gin.SetMode(ginMode(c.cfg.Server.Mode))

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger(c.log))
	engine.Use(middleware.CORS(c.cfg.Server.AllowedOrigins))

	engine.GET("/health", c.healthHandler.Check)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupBillingRoutes(engine, &routes.BillingRouteConfig{
		BillingHandler: c.billingHandler,
		AuthMiddleware: c.authMiddleware,
	})

	routes.SetupGenerationRoutes(engine, &routes.GenerationRouteConfig{
		GenerationHandler:   c.generationHandler,
		UsageHandler:        c.usageHandler,
		AuthMiddleware:      c.authMiddleware,
		RateLimitMiddleware: c.rateLimitMiddleware,
	})

	routes.SetupWebhookRoutes(engine, &routes.WebhookRouteConfig{
		WebhookHandler: c.webhookHandler,
	})

	return engine
}

func ginMode(mode string) string {
	switch mode {
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
