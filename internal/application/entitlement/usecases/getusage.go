package usecases

import (
	"context"
	"fmt"
	"time"

	"captionly/internal/domain/usage"
	"captionly/internal/shared/biztime"
	"captionly/internal/shared/logger"
)

// UsageSummary is the read model returned to the usage endpoint.
type UsageSummary struct {
	Tier            string
	Period          string
	Used            int64
	Limit           int64
	Remaining       int64
	MaxPlatforms    int
	SubscriptionEnd *time.Time
	TrialActivated  bool
}

// GetUsageUseCase reports the user's current tier and quota state.
type GetUsageUseCase struct {
	reconcileExpiry *ReconcileExpiryUseCase
	ledgerRepo      usage.LedgerRepository
	logger          logger.Interface
}

func NewGetUsageUseCase(
	reconcileExpiry *ReconcileExpiryUseCase,
	ledgerRepo usage.LedgerRepository,
	logger logger.Interface,
) *GetUsageUseCase {
	return &GetUsageUseCase{
		reconcileExpiry: reconcileExpiry,
		ledgerRepo:      ledgerRepo,
		logger:          logger,
	}
}

func (uc *GetUsageUseCase) Execute(ctx context.Context, userID uint) (*UsageSummary, error) {
	view, err := uc.reconcileExpiry.View(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := view.Limits
	period := usage.CurrentPeriod(biztime.NowUTC())

	record, err := uc.ledgerRepo.GetOrCreate(ctx, userID, period, limits.MonthlyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage ledger: %w", err)
	}

	return &UsageSummary{
		Tier:            view.Tier.String(),
		Period:          period.Key(),
		Used:            record.GeneratedCount(),
		Limit:           record.LimitSnapshot(),
		Remaining:       record.Remaining(),
		MaxPlatforms:    limits.MaxPlatforms,
		SubscriptionEnd: view.SubscriptionEnd,
		TrialActivated:  view.TrialActivated,
	}, nil
}
