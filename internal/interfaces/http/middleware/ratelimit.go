package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"captionly/internal/infrastructure/ratelimit"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

// RateLimitMiddleware throttles the generation endpoint per user. The limiter
// is an injected capability, so deployments choose Redis or process memory;
// this throttle is independent of the durable monthly quota ledger.
type RateLimitMiddleware struct {
	limiter ratelimit.RateLimiter
	config  ratelimit.Config
	logger  logger.Interface
}

func NewRateLimitMiddleware(limiter ratelimit.RateLimiter, config ratelimit.Config, logger logger.Interface) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// LimitByUser enforces the request budget keyed by user id, or by client IP
// for unauthenticated callers. Falls open when the limiter backend is
// unavailable so a cache outage cannot take down the API.
func (m *RateLimitMiddleware) LimitByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := UserID(c); ok {
			key = fmt.Sprintf("user:%d", userID)
		}

		allowed, err := m.limiter.Allow(c.Request.Context(), key, m.config)
		if err != nil {
			m.logger.Warnw("rate limiter unavailable, allowing request", "error", err, "key", key)
			c.Next()
			return
		}

		if !allowed {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
