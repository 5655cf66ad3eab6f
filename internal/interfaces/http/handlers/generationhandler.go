package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	generationUC "captionly/internal/application/generation/usecases"
	"captionly/internal/interfaces/http/middleware"
	"captionly/internal/shared/logger"
	"captionly/internal/shared/utils"
)

type GenerationHandler struct {
	generateUC *generationUC.GenerateCaptionsUseCase
	logger     logger.Interface
}

func NewGenerationHandler(generateUC *generationUC.GenerateCaptionsUseCase, logger logger.Interface) *GenerationHandler {
	return &GenerationHandler{
		generateUC: generateUC,
		logger:     logger,
	}
}

type generateRequest struct {
	ImageURL  string   `json:"image_url" validate:"required,url"`
	Platforms []string `json:"platforms" validate:"required,min=1"`
	Tone      string   `json:"tone"`
}

// Generate godoc
// @Summary Generate captions for an image
// @Description Charges one generation against the monthly quota, then runs the caption pipeline
// @Security Bearer
// @Tags generations
// @Accept json
// @Produce json
// @Param request body generateRequest true "Generation request"
// @Success 200 {object} utils.APIResponse "Generated captions"
// @Failure 403 {object} map[string]interface{} "Monthly limit exceeded"
// @Router /generations [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.generateUC.Execute(c.Request.Context(), generationUC.GenerateCaptionsCommand{
		UserID:    userID,
		ImageURL:  req.ImageURL,
		Platforms: req.Platforms,
		Tone:      req.Tone,
	})
	if err != nil {
		h.logger.Warnw("generation request rejected", "error", err, "user_id", userID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}
