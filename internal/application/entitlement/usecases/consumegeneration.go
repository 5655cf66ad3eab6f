package usecases

import (
	"context"
	"fmt"

	"captionly/internal/domain/usage"
	"captionly/internal/shared/biztime"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type ConsumeGenerationCommand struct {
	UserID        uint
	PlatformCount int
}

// ConsumeGenerationUseCase charges the user's monthly quota for one caption
// generation request. The decrement is a single conditional update in the
// ledger; any storage failure denies the request (fail closed).
type ConsumeGenerationUseCase struct {
	reconcileExpiry *ReconcileExpiryUseCase
	ledgerRepo      usage.LedgerRepository
	logger          logger.Interface
}

func NewConsumeGenerationUseCase(
	reconcileExpiry *ReconcileExpiryUseCase,
	ledgerRepo usage.LedgerRepository,
	logger logger.Interface,
) *ConsumeGenerationUseCase {
	return &ConsumeGenerationUseCase{
		reconcileExpiry: reconcileExpiry,
		ledgerRepo:      ledgerRepo,
		logger:          logger,
	}
}

func (uc *ConsumeGenerationUseCase) Execute(ctx context.Context, cmd ConsumeGenerationCommand) (*usage.ConsumeResult, error) {
	if cmd.PlatformCount < 1 {
		return nil, apperrors.NewValidationError("platform count must be at least 1")
	}

	view, err := uc.reconcileExpiry.View(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	limits := view.Limits
	if cmd.PlatformCount > limits.MaxPlatforms {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("tier %s allows at most %d platforms per request", view.Tier, limits.MaxPlatforms))
	}

	period := usage.CurrentPeriod(biztime.NowUTC())
	if _, err := uc.ledgerRepo.GetOrCreate(ctx, cmd.UserID, period, limits.MonthlyLimit); err != nil {
		return nil, fmt.Errorf("failed to load usage ledger: %w", err)
	}

	result, err := uc.ledgerRepo.TryConsume(ctx, cmd.UserID, period, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to consume generation quota: %w", err)
	}

	if !result.Allowed {
		uc.logger.Infow("generation denied by quota",
			"user_id", cmd.UserID,
			"current", result.Current,
			"limit", result.Limit,
		)
		return nil, apperrors.NewLimitExceededError(result.Current, result.Limit)
	}

	uc.logger.Debugw("generation quota consumed",
		"user_id", cmd.UserID,
		"current", result.Current,
		"limit", result.Limit,
	)

	return result, nil
}
