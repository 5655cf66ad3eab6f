package models

import "time"

// UsageLedgerModel is the durable per-(user, period) generation counter.
// Exactly one row exists per user and period; the unique index is what makes
// GetOrCreate race-free.
type UsageLedgerModel struct {
	ID             uint   `gorm:"primarykey"`
	UserID         uint   `gorm:"not null;uniqueIndex:ux_usage_user_period,priority:1"`
	Period         string `gorm:"not null;size:7;uniqueIndex:ux_usage_user_period,priority:2;comment:calendar month key YYYY-MM"`
	GeneratedCount int64  `gorm:"not null;default:0"`
	LimitSnapshot  int64  `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName specifies the table name for GORM
func (UsageLedgerModel) TableName() string {
	return "usage_ledgers"
}
