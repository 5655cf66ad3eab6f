package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"captionly/internal/domain/entitlement"
	"captionly/internal/infrastructure/persistence/models"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

// EntitlementRepositoryImpl implements entitlement.Repository using GORM.
type EntitlementRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewEntitlementRepository creates a new GORM-based entitlement repository.
func NewEntitlementRepository(db *gorm.DB, logger logger.Interface) entitlement.Repository {
	return &EntitlementRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// GetByUserID retrieves the entitlement row for a user.
func (r *EntitlementRepositoryImpl) GetByUserID(ctx context.Context, userID uint) (*entitlement.Entitlement, error) {
	var model models.EntitlementModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrNotFound
		}
		r.logger.Errorw("failed to get entitlement by user ID", "error", err, "user_id", userID)
		return nil, err
	}

	return r.toEntity(&model)
}

// GetByExternalSubscriptionID retrieves the entitlement holding the given
// provider subscription id.
func (r *EntitlementRepositoryImpl) GetByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*entitlement.Entitlement, error) {
	var model models.EntitlementModel
	err := r.db.WithContext(ctx).Where("external_subscription_id = ?", subscriptionID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrNotFound
		}
		r.logger.Errorw("failed to get entitlement by external subscription ID", "error", err, "subscription_id", subscriptionID)
		return nil, err
	}

	return r.toEntity(&model)
}

// GetByExternalCustomerID retrieves the entitlement holding the given
// provider customer id.
func (r *EntitlementRepositoryImpl) GetByExternalCustomerID(ctx context.Context, customerID string) (*entitlement.Entitlement, error) {
	var model models.EntitlementModel
	err := r.db.WithContext(ctx).Where("external_customer_id = ?", customerID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlement.ErrNotFound
		}
		r.logger.Errorw("failed to get entitlement by external customer ID", "error", err, "customer_id", customerID)
		return nil, err
	}

	return r.toEntity(&model)
}

// Create inserts a new entitlement row and backfills the generated ID.
func (r *EntitlementRepositoryImpl) Create(ctx context.Context, ent *entitlement.Entitlement) error {
	model := r.toModel(ent)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return apperrors.NewConflictError("entitlement already exists for user")
		}
		r.logger.Errorw("failed to create entitlement", "error", err, "user_id", ent.UserID())
		return err
	}

	return ent.SetID(model.ID)
}

// Save persists the aggregate with an optimistic lock on the version column.
// The update only lands when no concurrent writer advanced the row past the
// version we are about to write.
func (r *EntitlementRepositoryImpl) Save(ctx context.Context, ent *entitlement.Entitlement) error {
	model := r.toModel(ent)

	result := r.db.WithContext(ctx).Model(&models.EntitlementModel{}).
		Where("id = ? AND version < ?", ent.ID(), ent.Version()).
		Updates(map[string]interface{}{
			"tier":                      model.Tier,
			"subscription_start":        model.SubscriptionStart,
			"subscription_end":          model.SubscriptionEnd,
			"external_customer_id":      model.ExternalCustomerID,
			"external_subscription_id":  model.ExternalSubscriptionID,
			"trial_ends_at":             model.TrialEndsAt,
			"trial_activated":           model.TrialActivated,
			"cancelled_subscription_id": model.CancelledSubscriptionID,
			"last_event_at":             model.LastEventAt,
			"version":                   model.Version,
			"updated_at":                model.UpdatedAt,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to save entitlement", "error", result.Error, "user_id", ent.UserID())
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewConflictError("entitlement was modified concurrently")
	}

	return nil
}

// DowngradeExpired collapses a lapsed trial/premium row to free in one
// conditional UPDATE. Cancelled subscription id and last event time are left
// untouched so a late renewal webhook still applies.
func (r *EntitlementRepositoryImpl) DowngradeExpired(ctx context.Context, userID uint, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.EntitlementModel{}).
		Where("user_id = ? AND tier IN ? AND subscription_end IS NOT NULL AND subscription_end < ?",
			userID, []string{string(entitlement.TierTrial), string(entitlement.TierPremium)}, now).
		Updates(map[string]interface{}{
			"tier":                     string(entitlement.TierFree),
			"subscription_start":       nil,
			"subscription_end":         nil,
			"trial_ends_at":            nil,
			"external_subscription_id": "",
			"version":                  gorm.Expr("version + 1"),
			"updated_at":               now.UTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to downgrade expired entitlement", "error", result.Error, "user_id", userID)
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// toEntity converts a persistence model to a domain entity.
func (r *EntitlementRepositoryImpl) toEntity(model *models.EntitlementModel) (*entitlement.Entitlement, error) {
	return entitlement.ReconstructEntitlement(
		model.ID,
		model.UserID,
		entitlement.Tier(model.Tier),
		model.SubscriptionStart,
		model.SubscriptionEnd,
		model.ExternalCustomerID,
		model.ExternalSubscriptionID,
		model.TrialEndsAt,
		model.TrialActivated,
		model.CancelledSubscriptionID,
		model.LastEventAt,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toModel converts a domain entity to a persistence model.
func (r *EntitlementRepositoryImpl) toModel(ent *entitlement.Entitlement) *models.EntitlementModel {
	return &models.EntitlementModel{
		ID:                      ent.ID(),
		UserID:                  ent.UserID(),
		Tier:                    string(ent.Tier()),
		SubscriptionStart:       ent.SubscriptionStart(),
		SubscriptionEnd:         ent.SubscriptionEnd(),
		ExternalCustomerID:      ent.ExternalCustomerID(),
		ExternalSubscriptionID:  ent.ExternalSubscriptionID(),
		TrialEndsAt:             ent.TrialEndsAt(),
		TrialActivated:          ent.TrialActivated(),
		CancelledSubscriptionID: ent.CancelledSubscriptionID(),
		LastEventAt:             ent.LastEventAt(),
		Version:                 ent.Version(),
		CreatedAt:               ent.CreatedAt(),
		UpdatedAt:               ent.UpdatedAt(),
	}
}
