// Package migration runs schema migrations with goose. The SQL scripts are
// embedded so the binary can migrate without a checkout on disk.
package migration

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"captionly/internal/shared/logger"
)

//go:embed scripts/*.sql
var scriptsFS embed.FS

// Migrator applies embedded goose migrations against the primary database.
type Migrator struct {
	logger logger.Interface
}

func NewMigrator(log logger.Interface) *Migrator {
	goose.SetBaseFS(scriptsFS)
	goose.SetLogger(goose.NopLogger())
	return &Migrator{
		logger: log.Named("migration"),
	}
}

func (m *Migrator) Up(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	before, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err := goose.Up(sqlDB, "scripts"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	m.logger.Infow("migrations applied", "from_version", before, "to_version", after)
	return nil
}

// Down rolls back the most recent migration, steps times.
func (m *Migrator) Down(db *gorm.DB, steps int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	for i := 0; i < steps; i++ {
		if err := goose.Down(sqlDB, "scripts"); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
	}

	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	m.logger.Infow("migrations rolled back", "steps", steps, "version", version)
	return nil
}

func (m *Migrator) Status(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.Status(sqlDB, "scripts")
}

// Version returns the current schema version.
func (m *Migrator) Version(db *gorm.DB) (int64, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := goose.SetDialect("mysql"); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.GetDBVersion(sqlDB)
}
