package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventModel stores provider webhook payloads with deduplication
// metadata for idempotent processing. The unique provider event id index is
// the idempotency guarantee.
type WebhookEventModel struct {
	ID              uint           `gorm:"primarykey"`
	ProviderEventID string         `gorm:"uniqueIndex;not null;size:191"`
	EventType       string         `gorm:"not null;size:100;index"`
	Payload         datatypes.JSON `gorm:"not null"`
	EventTimestamp  time.Time      `gorm:"not null;index"`
	ProcessedAt     *time.Time
	ProcessingError string `gorm:"type:text"`
	CreatedAt       time.Time
}

// TableName specifies the table name for GORM
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}
