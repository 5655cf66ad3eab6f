package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"captionly/internal/infrastructure/persistence/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite gives each pooled connection its own view of a memory database;
	// one connection keeps the schema and the data together.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.EntitlementModel{},
		&models.UsageLedgerModel{},
		&models.WebhookEventModel{},
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}
