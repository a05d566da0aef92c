// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/lorekeeper/internal/config"
	"github.com/aimd54/lorekeeper/internal/migrations"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// Repository errors. Callers test with errors.Is.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict means a guarded update matched no row because the record changed state.
	ErrConflict = errors.New("record state changed")
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
	migrateURL string
}

// NewDB opens the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	// Configure GORM logger
	gormLogLevel := gormlogger.Warn
	if log.Level() <= zerolog.DebugLevel {
		gormLogLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel),
		TranslateError: true,
	}

	var (
		dialector  gorm.Dialector
		migrateURL string
	)
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Postgres.DSN())
		migrateURL = cfg.Postgres.URL()
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	} else {
		// sqlite serializes writers anyway
		sqlDB.SetMaxOpenConns(1)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Str("host", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Msg("Connected to database")

	return &DB{DB: db, migrateURL: migrateURL}, nil
}

// NewDBFromGorm wraps an already opened connection. Schema is managed with AutoMigrate.
func NewDBFromGorm(db *gorm.DB) *DB {
	return &DB{DB: db}
}

// MigrateIdentity brings the identity schema up to date.
func (db *DB) MigrateIdentity() error {
	return db.migrate(migrations.Identity, &models.User{})
}

// MigrateLore brings the lore schema up to date.
func (db *DB) MigrateLore() error {
	return db.migrate(migrations.Lore, &models.Creature{}, &models.Testimony{}, &models.ModerationLog{})
}

// migrate runs versioned SQL migrations on postgres and AutoMigrate elsewhere.
func (db *DB) migrate(src migrations.Source, fallback ...interface{}) error {
	if db.migrateURL != "" {
		return migrations.Up(db.migrateURL, src)
	}
	if err := db.DB.AutoMigrate(fallback...); err != nil {
		return fmt.Errorf("failed to auto-migrate %s schema: %w", src.Name, err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// translate maps gorm errors onto the repository sentinels, keeping msg as context.
func translate(err error, msg string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
