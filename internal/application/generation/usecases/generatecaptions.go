package usecases

import (
	"context"

	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/application/generation"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type GenerateCaptionsCommand struct {
	UserID    uint
	ImageURL  string
	Platforms []string
	Tone      string
}

// GenerateCaptionsUseCase gates caption generation behind the monthly quota.
// The quota is charged before the pipeline runs; a pipeline failure does not
// refund the charge, matching the fail-closed stance of the ledger.
type GenerateCaptionsUseCase struct {
	consumeGeneration *entitlementUC.ConsumeGenerationUseCase
	pipeline          generation.CaptionPipeline
	logger            logger.Interface
}

func NewGenerateCaptionsUseCase(
	consumeGeneration *entitlementUC.ConsumeGenerationUseCase,
	pipeline generation.CaptionPipeline,
	logger logger.Interface,
) *GenerateCaptionsUseCase {
	return &GenerateCaptionsUseCase{
		consumeGeneration: consumeGeneration,
		pipeline:          pipeline,
		logger:            logger,
	}
}

func (uc *GenerateCaptionsUseCase) Execute(ctx context.Context, cmd GenerateCaptionsCommand) (*generation.PipelineResult, error) {
	if cmd.ImageURL == "" {
		return nil, apperrors.NewValidationError("image_url is required")
	}
	if len(cmd.Platforms) == 0 {
		return nil, apperrors.NewValidationError("at least one platform is required")
	}

	// Charges one generation; the platform count is validated against the
	// tier limit inside and never invokes the pipeline when over quota.
	if _, err := uc.consumeGeneration.Execute(ctx, entitlementUC.ConsumeGenerationCommand{
		UserID:        cmd.UserID,
		PlatformCount: len(cmd.Platforms),
	}); err != nil {
		return nil, err
	}

	result, err := uc.pipeline.GenerateCaptions(ctx, generation.PipelineRequest{
		UserID:    cmd.UserID,
		ImageURL:  cmd.ImageURL,
		Platforms: cmd.Platforms,
		Tone:      cmd.Tone,
	})
	if err != nil {
		uc.logger.Errorw("caption pipeline failed", "error", err, "user_id", cmd.UserID)
		return nil, apperrors.NewExternalServiceError("caption generation failed")
	}

	return result, nil
}
