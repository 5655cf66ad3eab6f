package repository

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"captionly/internal/domain/billing"
	"captionly/internal/infrastructure/persistence/models"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

// WebhookEventRepositoryImpl implements billing.WebhookEventRepository using
// GORM. The unique index on provider_event_id carries the dedup guarantee.
type WebhookEventRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewWebhookEventRepository creates a new GORM-based webhook event repository.
func NewWebhookEventRepository(db *gorm.DB, logger logger.Interface) billing.WebhookEventRepository {
	return &WebhookEventRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent stores the event keyed by its provider event id. Returns
// false when the id is already recorded, meaning this delivery is a retry
// of an event the service has seen before.
func (r *WebhookEventRepositoryImpl) InsertIfAbsent(ctx context.Context, event *billing.WebhookEvent) (bool, error) {
	model := r.toModel(event)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) {
			return false, nil
		}
		r.logger.Errorw("failed to insert webhook event", "error", err, "provider_event_id", event.ProviderEventID())
		return false, err
	}

	if err := event.SetID(model.ID); err != nil {
		return false, err
	}
	return true, nil
}

// GetByProviderEventID loads the stored record for a provider event id.
func (r *WebhookEventRepositoryImpl) GetByProviderEventID(ctx context.Context, providerEventID string) (*billing.WebhookEvent, error) {
	var model models.WebhookEventModel
	err := r.db.WithContext(ctx).Where("provider_event_id = ?", providerEventID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrEventNotFound
		}
		r.logger.Errorw("failed to get webhook event", "error", err, "provider_event_id", providerEventID)
		return nil, err
	}

	return billing.ReconstructWebhookEvent(
		model.ID,
		model.ProviderEventID,
		model.EventType,
		[]byte(model.Payload),
		model.EventTimestamp,
		model.ProcessedAt,
		model.ProcessingError,
		model.CreatedAt,
	)
}

// Update persists processing bookkeeping for an already-inserted event.
func (r *WebhookEventRepositoryImpl) Update(ctx context.Context, event *billing.WebhookEvent) error {
	err := r.db.WithContext(ctx).Model(&models.WebhookEventModel{}).
		Where("id = ?", event.ID()).
		Updates(map[string]interface{}{
			"processed_at":     event.ProcessedAt(),
			"processing_error": event.ProcessingError(),
		}).Error
	if err != nil {
		r.logger.Errorw("failed to update webhook event", "error", err, "provider_event_id", event.ProviderEventID())
		return err
	}

	return nil
}

// toModel converts a domain entity to a persistence model.
func (r *WebhookEventRepositoryImpl) toModel(event *billing.WebhookEvent) *models.WebhookEventModel {
	return &models.WebhookEventModel{
		ID:              event.ID(),
		ProviderEventID: event.ProviderEventID(),
		EventType:       event.RawType(),
		Payload:         datatypes.JSON(event.Payload()),
		EventTimestamp:  event.EventTimestamp(),
		ProcessedAt:     event.ProcessedAt(),
		ProcessingError: event.ProcessingError(),
		CreatedAt:       event.CreatedAt(),
	}
}
