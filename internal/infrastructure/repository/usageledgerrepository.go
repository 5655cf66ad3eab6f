package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"captionly/internal/domain/usage"
	"captionly/internal/infrastructure/persistence/models"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

// UsageLedgerRepositoryImpl implements usage.LedgerRepository using GORM.
// The consume path is a single conditional UPDATE so concurrent requests
// cannot overshoot the period limit.
type UsageLedgerRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewUsageLedgerRepository creates a new GORM-based usage ledger repository.
func NewUsageLedgerRepository(db *gorm.DB, logger logger.Interface) usage.LedgerRepository {
	return &UsageLedgerRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// GetOrCreate returns the ledger record for (userID, period), creating the
// zero row when absent. A duplicate-key failure from a racing creator is
// resolved by re-reading the winner's row.
func (r *UsageLedgerRepositoryImpl) GetOrCreate(ctx context.Context, userID uint, period usage.Period, limitSnapshot int64) (*usage.Record, error) {
	record, err := r.Get(ctx, userID, period)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, usage.ErrRecordNotFound) {
		return nil, err
	}

	model := &models.UsageLedgerModel{
		UserID:         userID,
		Period:         period.Key(),
		GeneratedCount: 0,
		LimitSnapshot:  limitSnapshot,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return r.Get(ctx, userID, period)
		}
		r.logger.Errorw("failed to create usage ledger record", "error", err, "user_id", userID, "period", period.Key())
		return nil, err
	}

	return r.toEntity(model)
}

// Get returns the ledger record for (userID, period).
func (r *UsageLedgerRepositoryImpl) Get(ctx context.Context, userID uint, period usage.Period) (*usage.Record, error) {
	var model models.UsageLedgerModel
	err := r.db.WithContext(ctx).Where("user_id = ? AND period = ?", userID, period.Key()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usage.ErrRecordNotFound
		}
		r.logger.Errorw("failed to get usage ledger record", "error", err, "user_id", userID, "period", period.Key())
		return nil, err
	}

	return r.toEntity(&model)
}

// TryConsume atomically increments generatedCount by amount when the result
// stays within the limit snapshot. The guard lives in the WHERE clause, so
// two concurrent consumers can never both take the last slot.
func (r *UsageLedgerRepositoryImpl) TryConsume(ctx context.Context, userID uint, period usage.Period, amount int64) (*usage.ConsumeResult, error) {
	result := r.db.WithContext(ctx).Model(&models.UsageLedgerModel{}).
		Where("user_id = ? AND period = ? AND generated_count + ? <= limit_snapshot", userID, period.Key(), amount).
		Updates(map[string]interface{}{
			"generated_count": gorm.Expr("generated_count + ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to consume usage", "error", result.Error, "user_id", userID, "period", period.Key())
		return nil, result.Error
	}

	record, err := r.Get(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	return &usage.ConsumeResult{
		Allowed:   result.RowsAffected > 0,
		Current:   record.GeneratedCount(),
		Limit:     record.LimitSnapshot(),
		Remaining: record.Remaining(),
	}, nil
}

// ResyncLimit updates the limit snapshot to the new tier's limit without
// touching generatedCount. Missing rows are fine: the next GetOrCreate
// snapshots the current tier anyway.
func (r *UsageLedgerRepositoryImpl) ResyncLimit(ctx context.Context, userID uint, period usage.Period, newLimit int64) error {
	err := r.db.WithContext(ctx).Model(&models.UsageLedgerModel{}).
		Where("user_id = ? AND period = ?", userID, period.Key()).
		Updates(map[string]interface{}{
			"limit_snapshot": newLimit,
			"updated_at":     time.Now().UTC(),
		}).Error
	if err != nil {
		r.logger.Errorw("failed to resync usage limit", "error", err, "user_id", userID, "period", period.Key())
		return err
	}

	return nil
}

// toEntity converts a persistence model to a domain entity.
func (r *UsageLedgerRepositoryImpl) toEntity(model *models.UsageLedgerModel) (*usage.Record, error) {
	period, err := usage.ParsePeriodKey(model.Period)
	if err != nil {
		return nil, err
	}

	return usage.ReconstructRecord(
		model.ID,
		model.UserID,
		period,
		model.GeneratedCount,
		model.LimitSnapshot,
		model.CreatedAt,
		model.UpdatedAt,
	)
}
