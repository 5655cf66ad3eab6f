package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	webhookUC "captionly/internal/application/webhook/usecases"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "Paylane-Signature"

// WebhookHandler receives billing provider event pushes. It must see the raw
// body; any re-encoding would break signature verification.
type WebhookHandler struct {
	processWebhookUC *webhookUC.ProcessWebhookUseCase
	logger           logger.Interface
}

func NewWebhookHandler(processWebhookUC *webhookUC.ProcessWebhookUseCase, logger logger.Interface) *WebhookHandler {
	return &WebhookHandler{
		processWebhookUC: processWebhookUC,
		logger:           logger,
	}
}

// HandleBillingWebhook godoc
// @Summary Receive a billing provider event
// @Description Replies 200 for anything durably recorded, including events whose processing failed; only signature and parse failures are rejected
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Paylane-Signature header string true "HMAC signature over the raw body"
// @Success 200 {object} map[string]bool "Event acknowledged"
// @Failure 400 {object} utils.APIResponse "Bad signature or malformed payload"
// @Router /webhook [post]
func (h *WebhookHandler) HandleBillingWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		h.logger.Warnw("failed to read webhook body", "error", err)
		utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.processWebhookUC.Execute(c.Request.Context(), payload, c.GetHeader(SignatureHeader)); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
