package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/lorekeeper/internal/models"
)

// TestimonyRepository handles testimony persistence. Unless a method says
// otherwise, soft-deleted testimonies are invisible to it.
type TestimonyRepository struct {
	db *DB
}

// NewTestimonyRepository creates a new testimony repository.
func NewTestimonyRepository(db *DB) *TestimonyRepository {
	return &TestimonyRepository{db: db}
}

// Create inserts a new testimony.
func (r *TestimonyRepository) Create(ctx context.Context, testimony *models.Testimony) error {
	if err := r.db.WithContext(ctx).Create(testimony).Error; err != nil {
		return translate(err, "failed to create testimony")
	}
	return nil
}

// GetByID retrieves a non-deleted testimony.
func (r *TestimonyRepository) GetByID(ctx context.Context, id string) (*models.Testimony, error) {
	var testimony models.Testimony
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&testimony).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("failed to get testimony %s", id))
	}
	return &testimony, nil
}

// GetByIDIncludingDeleted retrieves a testimony whether or not it is soft-deleted.
func (r *TestimonyRepository) GetByIDIncludingDeleted(ctx context.Context, id string) (*models.Testimony, error) {
	var testimony models.Testimony
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&testimony).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to get testimony %s", id))
	}
	return &testimony, nil
}

// ListByCreature lists testimonies of a creature, newest first. An empty status means all.
func (r *TestimonyRepository) ListByCreature(ctx context.Context, creatureID string, status models.TestimonyStatus) ([]models.Testimony, error) {
	query := r.db.WithContext(ctx).Where("creature_id = ? AND deleted_at IS NULL", creatureID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var testimonies []models.Testimony
	if err := query.Order("created_at DESC").Find(&testimonies).Error; err != nil {
		return nil, fmt.Errorf("failed to list testimonies of creature %s: %w", creatureID, err)
	}
	return testimonies, nil
}

// ListByAuthor lists testimonies written by authorID, newest first.
func (r *TestimonyRepository) ListByAuthor(ctx context.Context, authorID string) ([]models.Testimony, error) {
	var testimonies []models.Testimony
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND deleted_at IS NULL", authorID).
		Order("created_at DESC").
		Find(&testimonies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list testimonies of author %s: %w", authorID, err)
	}
	return testimonies, nil
}

// FindRecent returns the newest testimony by authorID on creatureID created at or
// after since, or nil when there is none.
func (r *TestimonyRepository) FindRecent(ctx context.Context, authorID, creatureID string, since time.Time) (*models.Testimony, error) {
	var testimonies []models.Testimony
	err := r.db.WithContext(ctx).
		Where("author_id = ? AND creature_id = ? AND deleted_at IS NULL AND created_at >= ?", authorID, creatureID, since).
		Order("created_at DESC").
		Limit(1).
		Find(&testimonies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find recent testimony: %w", err)
	}
	if len(testimonies) == 0 {
		return nil, nil
	}
	return &testimonies[0], nil
}

// CountByCreatureAndStatus counts non-deleted testimonies of a creature in a status.
func (r *TestimonyRepository) CountByCreatureAndStatus(ctx context.Context, creatureID string, status models.TestimonyStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Testimony{}).
		Where("creature_id = ? AND status = ? AND deleted_at IS NULL", creatureID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count testimonies of creature %s: %w", creatureID, err)
	}
	return count, nil
}

// TransitionStatus moves a non-deleted testimony from one status to another and
// records the moderator. It succeeds for at most one concurrent caller; the
// others get ErrConflict.
func (r *TestimonyRepository) TransitionStatus(ctx context.Context, id string, from, to models.TestimonyStatus, moderatorID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Testimony{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, from).
		Updates(map[string]interface{}{
			"status":       to,
			"validated_by": moderatorID,
			"validated_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to move testimony %s to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("failed to move testimony %s to %s: %w", id, to, ErrConflict)
	}
	return nil
}

// SoftDelete marks a non-deleted testimony as deleted. ErrConflict if it already was.
func (r *TestimonyRepository) SoftDelete(ctx context.Context, id, deleterID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Testimony{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": at,
			"deleted_by": deleterID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to delete testimony %s: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("failed to delete testimony %s: %w", id, ErrConflict)
	}
	return nil
}

// Restore clears the soft-delete marker. ErrConflict if the testimony was not deleted.
func (r *TestimonyRepository) Restore(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Testimony{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": nil,
			"deleted_by": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to restore testimony %s: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("failed to restore testimony %s: %w", id, ErrConflict)
	}
	return nil
}
