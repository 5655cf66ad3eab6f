package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	billingUC "captionly/internal/application/billing/usecases"
	checkoutUC "captionly/internal/application/checkout/usecases"
	entitlementUC "captionly/internal/application/entitlement/usecases"
	generationUC "captionly/internal/application/generation/usecases"
	webhookUC "captionly/internal/application/webhook/usecases"
	"captionly/internal/infrastructure/auth"
	"captionly/internal/infrastructure/billing"
	"captionly/internal/infrastructure/cache"
	"captionly/internal/infrastructure/captionpipeline"
	"captionly/internal/infrastructure/config"
	"captionly/internal/infrastructure/database"
	"captionly/internal/infrastructure/email"
	"captionly/internal/infrastructure/ratelimit"
	"captionly/internal/infrastructure/repository"
	"captionly/internal/interfaces/http/handlers"
	"captionly/internal/interfaces/http/middleware"
	sharedConfig "captionly/internal/shared/config"
	"captionly/internal/shared/logger"
)

// Container wires every component together and owns their lifecycles. All
// dependencies are constructed here and passed down explicitly; nothing
// reaches for package-level state.
type Container struct {
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	// Owned background workers
	memoryLimiter *ratelimit.MemoryRateLimiter

	// Handlers
	billingHandler    *handlers.BillingHandler
	usageHandler      *handlers.UsageHandler
	generationHandler *handlers.GenerationHandler
	webhookHandler    *handlers.WebhookHandler
	healthHandler     *handlers.HealthHandler

	// Middleware
	authMiddleware      *middleware.AuthMiddleware
	rateLimitMiddleware *middleware.RateLimitMiddleware
}

// NewContainer builds the full dependency graph. Redis is optional: when it
// is unreachable the entitlement cache is skipped and rate limiting falls
// back to the in-process limiter.
func NewContainer(cfg *config.Config, log logger.Interface) (*Container, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Container{
		db:  db,
		cfg: cfg,
		log: log,
	}

	c.redis = initRedis(&cfg.Redis, log)

	// Repositories
	entitlementRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)
	eventRepo := repository.NewWebhookEventRepository(db, log)

	// Optional entitlement cache
	var entitlementCache cache.EntitlementCache
	if c.redis != nil {
		entitlementCache = cache.NewRedisEntitlementCache(c.redis, log)
	}

	// Outbound services
	billingClient := billing.NewClient(&cfg.Billing, log)
	pipeline := captionpipeline.NewHTTPPipeline(&cfg.Pipeline, log)

	var emailSender email.Sender = email.NopSender{}
	if cfg.Email.Enabled {
		emailSender = email.NewSMTPSender(&cfg.Email)
	}

	// Use cases
	reconcileUC := entitlementUC.NewReconcileExpiryUseCase(entitlementRepo, ledgerRepo, entitlementCache, log)
	consumeUC := entitlementUC.NewConsumeGenerationUseCase(reconcileUC, ledgerRepo, log)
	getUsageUC := entitlementUC.NewGetUsageUseCase(reconcileUC, ledgerRepo, log)
	generateUC := generationUC.NewGenerateCaptionsUseCase(consumeUC, pipeline, log)

	stateApplier := billingUC.NewSubscriptionStateApplier(entitlementRepo, ledgerRepo, entitlementCache, emailSender, log)
	createCheckoutUC := checkoutUC.NewCreateCheckoutSessionUseCase(reconcileUC, billingClient, log)
	verifyCheckoutUC := checkoutUC.NewVerifyCheckoutSessionUseCase(billingClient, stateApplier, entitlementRepo, log)
	cancelUC := checkoutUC.NewCancelSubscriptionUseCase(reconcileUC, stateApplier, billingClient, log)
	processWebhookUC := webhookUC.NewProcessWebhookUseCase(eventRepo, billingClient, stateApplier, log)

	// Handlers
	c.billingHandler = handlers.NewBillingHandler(createCheckoutUC, verifyCheckoutUC, cancelUC, reconcileUC, log)
	c.usageHandler = handlers.NewUsageHandler(getUsageUC, log)
	c.generationHandler = handlers.NewGenerationHandler(generateUC, log)
	c.webhookHandler = handlers.NewWebhookHandler(processWebhookUC, log)
	c.healthHandler = handlers.NewHealthHandler(db)

	// Middleware
	jwtService := auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.AccessExpMinutes)
	c.authMiddleware = middleware.NewAuthMiddleware(jwtService, log)

	if cfg.RateLimit.Enabled {
		var limiter ratelimit.RateLimiter
		if c.redis != nil {
			limiter = ratelimit.NewRedisRateLimiter(c.redis)
		} else {
			c.memoryLimiter = ratelimit.NewMemoryRateLimiter()
			limiter = c.memoryLimiter
		}
		c.rateLimitMiddleware = middleware.NewRateLimitMiddleware(limiter, ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		}, log)
	}

	c.engine = c.setupRouter()

	return c, nil
}

// Engine returns the configured gin engine.
func (c *Container) Engine() *gin.Engine {
	return c.engine
}

// DB returns the primary database handle, for migration checks at startup.
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Shutdown stops owned background workers and closes connections.
func (c *Container) Shutdown(ctx context.Context) {
	if c.memoryLimiter != nil {
		c.memoryLimiter.Stop()
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warnw("failed to close redis client", "error", err)
		}
	}

	database.Close(c.db)
}

// initRedis connects to Redis. Unlike the database, Redis is not required to
// boot; a failed connection degrades caching and rate limiting instead.
func initRedis(cfg *sharedConfig.RedisConfig, log logger.Interface) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warnw("redis unavailable, continuing without cache", "error", err, "addr", cfg.GetAddr())
		_ = client.Close()
		return nil
	}

	log.Infow("redis connection established")
	return client
}
