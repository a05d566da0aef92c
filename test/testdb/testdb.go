// Package testdb opens migrated in-memory databases for service and handler tests.
package testdb

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/lorekeeper/internal/repository"
)

// New returns an in-memory SQLite database with identity and lore tables.
func New(t *testing.T) *repository.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	wrapped := repository.NewDBFromGorm(db)
	if err := wrapped.MigrateIdentity(); err != nil {
		t.Fatalf("Failed to migrate identity tables: %v", err)
	}
	if err := wrapped.MigrateLore(); err != nil {
		t.Fatalf("Failed to migrate lore tables: %v", err)
	}
	return wrapped
}
