package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/lorekeeper/internal/models"
)

// ModerationLogFilter narrows audit log queries. Zero fields are ignored.
type ModerationLogFilter struct {
	UserID     string
	Action     models.ModerationAction
	TargetID   string
	TargetType string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

// ModerationLogRepository is the append-only audit log store.
type ModerationLogRepository struct {
	db *DB
}

// NewModerationLogRepository creates a new moderation log repository.
func NewModerationLogRepository(db *DB) *ModerationLogRepository {
	return &ModerationLogRepository{db: db}
}

// Create appends an entry.
func (r *ModerationLogRepository) Create(ctx context.Context, entry *models.ModerationLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.TargetType == "" {
		entry.TargetType = models.TargetTestimony
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create moderation log: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (r *ModerationLogRepository) List(ctx context.Context, filter ModerationLogFilter) ([]models.ModerationLog, error) {
	query := r.filtered(ctx, filter).Order("timestamp DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.ModerationLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list moderation logs: %w", err)
	}
	return entries, nil
}

// Count returns the number of matching entries.
func (r *ModerationLogRepository) Count(ctx context.Context, filter ModerationLogFilter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count moderation logs: %w", err)
	}
	return count, nil
}

// CountByAction groups all entries by action, most frequent first.
func (r *ModerationLogRepository) CountByAction(ctx context.Context) ([]models.ActionCount, error) {
	var counts []models.ActionCount
	err := r.db.WithContext(ctx).Model(&models.ModerationLog{}).
		Select("action, COUNT(*) AS count").
		Group("action").
		Order("count DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count moderation logs by action: %w", err)
	}
	return counts, nil
}

func (r *ModerationLogRepository) filtered(ctx context.Context, filter ModerationLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.ModerationLog{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.Start != nil {
		query = query.Where("timestamp >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("timestamp <= ?", *filter.End)
	}
	return query
}
