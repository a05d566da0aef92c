package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/lorekeeper/internal/models"
)

// setupTestDB creates an in-memory SQLite database holding both services' tables.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// One connection, otherwise each pooled connection sees its own empty :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	wrapped := NewDBFromGorm(db)
	if err := wrapped.MigrateIdentity(); err != nil {
		t.Fatalf("Failed to migrate identity tables: %v", err)
	}
	if err := wrapped.MigrateLore(); err != nil {
		t.Fatalf("Failed to migrate lore tables: %v", err)
	}

	return wrapped
}

// createTestUser creates a test user in the database.
func createTestUser(t *testing.T, repo *UserRepository, username string, role models.Role, reputation int) *models.User {
	t.Helper()

	user := &models.User{
		Email:      username + "@example.com",
		Username:   username,
		Password:   "hash",
		Role:       role,
		Reputation: reputation,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestCreature creates a test creature in the database.
func createTestCreature(t *testing.T, repo *CreatureRepository, name, authorID string) *models.Creature {
	t.Helper()

	creature := &models.Creature{Name: name, AuthorID: authorID, Origin: "Nordique"}
	if err := repo.Create(context.Background(), creature); err != nil {
		t.Fatalf("Failed to create test creature: %v", err)
	}
	return creature
}

// createTestTestimony creates a pending testimony created at createdAt.
func createTestTestimony(t *testing.T, repo *TestimonyRepository, creatureID, authorID string, createdAt time.Time) *models.Testimony {
	t.Helper()

	testimony := &models.Testimony{
		CreatureID:  creatureID,
		AuthorID:    authorID,
		Description: "Seen near the fjord at dawn",
		CreatedAt:   createdAt,
	}
	if err := repo.Create(context.Background(), testimony); err != nil {
		t.Fatalf("Failed to create test testimony: %v", err)
	}
	return testimony
}
