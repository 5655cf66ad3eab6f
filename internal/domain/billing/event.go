package billing

import (
	"errors"
	"time"
)

// WebhookEvent is the audit record of one provider-pushed event. Delivery is
// at-least-once and possibly out of order; the provider event id is the
// dedup key.
type WebhookEvent struct {
	id              uint
	providerEventID string
	kind            EventKind
	rawType         string
	payload         []byte
	eventTimestamp  time.Time
	processedAt     *time.Time
	processingError string
	createdAt       time.Time
}

// NewWebhookEvent records a freshly received provider event.
func NewWebhookEvent(providerEventID, rawType string, payload []byte, eventTimestamp time.Time) (*WebhookEvent, error) {
	if providerEventID == "" {
		return nil, errors.New("provider event ID is required")
	}

	return &WebhookEvent{
		providerEventID: providerEventID,
		kind:            ParseEventKind(rawType),
		rawType:         rawType,
		payload:         payload,
		eventTimestamp:  eventTimestamp,
		createdAt:       time.Now().UTC(),
	}, nil
}

// ReconstructWebhookEvent rebuilds a webhook event from persistence.
func ReconstructWebhookEvent(
	id uint,
	providerEventID, rawType string,
	payload []byte,
	eventTimestamp time.Time,
	processedAt *time.Time,
	processingError string,
	createdAt time.Time,
) (*WebhookEvent, error) {
	if id == 0 {
		return nil, errors.New("webhook event ID cannot be zero")
	}
	if providerEventID == "" {
		return nil, errors.New("provider event ID is required")
	}

	return &WebhookEvent{
		id:              id,
		providerEventID: providerEventID,
		kind:            ParseEventKind(rawType),
		rawType:         rawType,
		payload:         payload,
		eventTimestamp:  eventTimestamp,
		processedAt:     processedAt,
		processingError: processingError,
		createdAt:       createdAt,
	}, nil
}

func (e *WebhookEvent) ID() uint                  { return e.id }
func (e *WebhookEvent) ProviderEventID() string   { return e.providerEventID }
func (e *WebhookEvent) Kind() EventKind           { return e.kind }
func (e *WebhookEvent) RawType() string           { return e.rawType }
func (e *WebhookEvent) Payload() []byte           { return e.payload }
func (e *WebhookEvent) EventTimestamp() time.Time { return e.eventTimestamp }
func (e *WebhookEvent) ProcessedAt() *time.Time   { return e.processedAt }
func (e *WebhookEvent) ProcessingError() string   { return e.processingError }
func (e *WebhookEvent) CreatedAt() time.Time      { return e.createdAt }

func (e *WebhookEvent) SetID(id uint) error {
	if id == 0 {
		return errors.New("webhook event ID cannot be zero")
	}
	e.id = id
	return nil
}

// MarkProcessed stamps successful handling.
func (e *WebhookEvent) MarkProcessed() {
	now := time.Now().UTC()
	e.processedAt = &now
	e.processingError = ""
}

// MarkFailed records the handler error. The event stays acknowledged; a
// redelivery of the same event id is reprocessed until one succeeds.
func (e *WebhookEvent) MarkFailed(reason string) {
	e.processingError = reason
}
