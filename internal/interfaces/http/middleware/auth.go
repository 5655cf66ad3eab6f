package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"captionly/internal/infrastructure/auth"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

// Context keys set by RequireAuth.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "user_email"
)

type AuthMiddleware struct {
	jwtService *auth.JWTService
	logger     logger.Interface
}

func NewAuthMiddleware(jwtService *auth.JWTService, logger logger.Interface) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		logger:     logger,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := m.jwtService.Verify(parts[1])
		if err != nil {
			m.logger.Warnw("failed to verify token", "error", err)
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)

		c.Next()
	}
}

// UserID extracts the authenticated user id from the request context.
func UserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

// UserEmail extracts the authenticated user's email, if present.
func UserEmail(c *gin.Context) string {
	value, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, _ := value.(string)
	return email
}
