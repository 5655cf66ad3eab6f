package billing

import (
	"context"
	"errors"
)

// ErrEventNotFound is returned when no event exists for a provider event id.
var ErrEventNotFound = errors.New("webhook event not found")

// WebhookEventRepository persists webhook events for idempotent processing.
type WebhookEventRepository interface {
	// InsertIfAbsent stores the event keyed by its provider event id.
	// Returns false when the id was already recorded (redelivery); the
	// caller must check the stored record's outcome before deciding
	// whether the transition may run again.
	InsertIfAbsent(ctx context.Context, event *WebhookEvent) (bool, error)

	// GetByProviderEventID loads the stored record for a provider event id,
	// or ErrEventNotFound.
	GetByProviderEventID(ctx context.Context, providerEventID string) (*WebhookEvent, error)

	// Update persists processing bookkeeping (processed_at, error).
	Update(ctx context.Context, event *WebhookEvent) error
}
