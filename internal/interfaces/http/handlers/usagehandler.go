package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/interfaces/http/middleware"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

type UsageHandler struct {
	getUsageUC *entitlementUC.GetUsageUseCase
	logger     logger.Interface
}

func NewUsageHandler(getUsageUC *entitlementUC.GetUsageUseCase, logger logger.Interface) *UsageHandler {
	return &UsageHandler{
		getUsageUC: getUsageUC,
		logger:     logger,
	}
}

// GetUsage godoc
// @Summary Get current period usage
// @Description Returns the caller's tier and remaining quota for the current period
// @Security Bearer
// @Tags usage
// @Produce json
// @Success 200 {object} utils.APIResponse "Usage summary"
// @Router /usage [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	summary, err := h.getUsageUC.Execute(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorw("failed to get usage summary", "error", err, "user_id", userID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"tier":             summary.Tier,
		"period":           summary.Period,
		"used":             summary.Used,
		"limit":            summary.Limit,
		"remaining":        summary.Remaining,
		"max_platforms":    summary.MaxPlatforms,
		"subscription_end": summary.SubscriptionEnd,
		"trial_activated":  summary.TrialActivated,
	})
}
