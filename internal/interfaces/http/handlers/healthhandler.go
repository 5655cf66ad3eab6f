package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db        *gorm.DB
	startedAt time.Time
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{
		db:        db,
		startedAt: time.Now(),
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	statusCode := http.StatusOK
	overall := "ok"
	dbStatus := "ok"

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		statusCode = http.StatusServiceUnavailable
		overall = "degraded"
		dbStatus = "unavailable"
	}

	c.JSON(statusCode, gin.H{
		"status":   overall,
		"uptime":   time.Since(h.startedAt).String(),
		"database": dbStatus,
	})
}
