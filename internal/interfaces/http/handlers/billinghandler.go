package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	checkoutUC "captionly/internal/application/checkout/usecases"
	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/interfaces/http/middleware"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

// BillingHandler handles HTTP requests for the checkout and subscription
// lifecycle.
type BillingHandler struct {
	createCheckoutUC *checkoutUC.CreateCheckoutSessionUseCase
	verifyCheckoutUC *checkoutUC.VerifyCheckoutSessionUseCase
	cancelUC         *checkoutUC.CancelSubscriptionUseCase
	reconcileUC      *entitlementUC.ReconcileExpiryUseCase
	logger           logger.Interface
}

func NewBillingHandler(
	createCheckoutUC *checkoutUC.CreateCheckoutSessionUseCase,
	verifyCheckoutUC *checkoutUC.VerifyCheckoutSessionUseCase,
	cancelUC *checkoutUC.CancelSubscriptionUseCase,
	reconcileUC *entitlementUC.ReconcileExpiryUseCase,
	logger logger.Interface,
) *BillingHandler {
	return &BillingHandler{
		createCheckoutUC: createCheckoutUC,
		verifyCheckoutUC: verifyCheckoutUC,
		cancelUC:         cancelUC,
		reconcileUC:      reconcileUC,
		logger:           logger,
	}
}

type createCheckoutRequest struct {
	Interval string `json:"interval" validate:"required,oneof=monthly yearly"`
}

type verifyCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

// CreateCheckoutSession godoc
// @Summary Start an upgrade checkout
// @Description Creates a hosted checkout session at the billing provider and returns its URL
// @Security Bearer
// @Tags billing
// @Accept json
// @Produce json
// @Param request body createCheckoutRequest true "Billing interval"
// @Success 200 {object} utils.APIResponse "Session created"
// @Failure 400 {object} utils.APIResponse "Bad request"
// @Failure 409 {object} utils.APIResponse "Already subscribed"
// @Router /checkout/session [post]
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.createCheckoutUC.Execute(c.Request.Context(), checkoutUC.CreateCheckoutSessionCommand{
		UserID:   userID,
		Email:    middleware.UserEmail(c),
		Interval: req.Interval,
	})
	if err != nil {
		h.logger.Errorw("failed to create checkout session", "error", err, "user_id", userID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"session_id":    result.SessionID,
		"checkout_url":  result.CheckoutURL,
		"include_trial": result.IncludeTrial,
	})
}

// VerifyCheckoutSession godoc
// @Summary Verify a completed checkout
// @Description Called after the provider redirects back; applies the subscription if payment settled
// @Security Bearer
// @Tags billing
// @Produce json
// @Param session_id query string true "Checkout session id"
// @Success 200 {object} utils.APIResponse "Verification result"
// @Failure 401 {object} utils.APIResponse "Session belongs to another user"
// @Router /checkout/verify [get]
func (h *BillingHandler) VerifyCheckoutSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	// session_id arrives as a query parameter on the redirect GET, or in the
	// body when the frontend re-checks over POST
	sessionID := c.Query("session_id")
	if sessionID == "" && c.Request.Method == http.MethodPost {
		var req verifyCheckoutRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			sessionID = req.SessionID
		}
	}
	if sessionID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.verifyCheckoutUC.Execute(c.Request.Context(), checkoutUC.VerifyCheckoutSessionCommand{
		UserID:    userID,
		Email:     middleware.UserEmail(c),
		SessionID: sessionID,
	})
	if err != nil {
		h.logger.Errorw("failed to verify checkout session",
			"error", err,
			"user_id", userID,
			"session_id", sessionID,
		)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"activated":          result.Activated,
		"tier":               result.Tier,
		"subscription_start": result.SubscriptionStart,
		"subscription_end":   result.SubscriptionEnd,
		"trial_ends_at":      result.TrialEndsAt,
	})
}

// CancelSubscription godoc
// @Summary Cancel the active subscription
// @Description Downgrades to free immediately; provider-side cancellation is best-effort
// @Security Bearer
// @Tags billing
// @Produce json
// @Success 200 {object} utils.APIResponse "Subscription cancelled"
// @Failure 409 {object} utils.APIResponse "No active subscription"
// @Router /subscription/cancel [post]
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	err := h.cancelUC.Execute(c.Request.Context(), checkoutUC.CancelSubscriptionCommand{
		UserID: userID,
		Email:  middleware.UserEmail(c),
	})
	if err != nil {
		h.logger.Errorw("failed to cancel subscription", "error", err, "user_id", userID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "subscription cancelled", nil)
}

type subscriptionResponse struct {
	Tier            string     `json:"tier"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	TrialEndsAt     *time.Time `json:"trial_ends_at,omitempty"`
	TrialActivated  bool       `json:"trial_activated"`
	MonthlyLimit    int64      `json:"monthly_limit"`
	MaxPlatforms    int        `json:"max_platforms"`
}

// GetSubscription godoc
// @Summary Get the current subscription
// @Security Bearer
// @Tags billing
// @Produce json
// @Success 200 {object} utils.APIResponse{data=subscriptionResponse} "Current entitlement"
// @Router /subscription [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	ent, err := h.reconcileUC.Execute(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorw("failed to get subscription state", "error", err, "user_id", userID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	limits := ent.Limits()
	utils.SuccessResponse(c, http.StatusOK, "", subscriptionResponse{
		Tier:            string(ent.Tier()),
		SubscriptionEnd: ent.SubscriptionEnd(),
		TrialEndsAt:     ent.TrialEndsAt(),
		TrialActivated:  ent.TrialActivated(),
		MonthlyLimit:    limits.MonthlyLimit,
		MaxPlatforms:    limits.MaxPlatforms,
	})
}
