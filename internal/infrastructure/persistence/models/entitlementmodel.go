package models

import (
	"time"

	"gorm.io/gorm"
)

// EntitlementModel represents the database persistence model for per-user
// subscription state. This is the anti-corruption layer between domain and
// database.
type EntitlementModel struct {
	ID                      uint   `gorm:"primarykey"`
	UserID                  uint   `gorm:"uniqueIndex;not null"`
	Tier                    string `gorm:"not null;size:20;index:idx_tier"`
	SubscriptionStart       *time.Time
	SubscriptionEnd         *time.Time `gorm:"index:idx_subscription_end"`
	ExternalCustomerID      string     `gorm:"size:100;index:idx_external_customer"`
	ExternalSubscriptionID  string     `gorm:"size:100;index:idx_external_subscription"`
	TrialEndsAt             *time.Time
	TrialActivated          bool   `gorm:"not null;default:false"`
	CancelledSubscriptionID string `gorm:"size:100"`
	LastEventAt             *time.Time
	Version                 int `gorm:"not null;default:1"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// TableName specifies the table name for GORM
func (EntitlementModel) TableName() string {
	return "entitlements"
}

// BeforeCreate hook for GORM
func (m *EntitlementModel) BeforeCreate(tx *gorm.DB) error {
	if m.Version == 0 {
		m.Version = 1
	}
	return nil
}
