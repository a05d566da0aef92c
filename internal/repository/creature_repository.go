package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/aimd54/lorekeeper/internal/models"
)

// creatureSorts maps accepted sort keys to ORDER BY clauses.
var creatureSorts = map[string]string{
	"legendScore":  "legend_score DESC, created_at DESC",
	"-legendScore": "legend_score ASC, created_at DESC",
	"createdAt":    "created_at ASC",
	"-createdAt":   "created_at DESC",
	"name":         "name ASC",
	"-name":        "name DESC",
}

// IsValidCreatureSort reports whether sort is an accepted sort key.
func IsValidCreatureSort(sort string) bool {
	_, ok := creatureSorts[sort]
	return ok
}

// CreatureQuery filters and paginates creature listings.
type CreatureQuery struct {
	Page     int
	Limit    int
	Sort     string
	Search   string
	AuthorID string
}

// CreatureRepository handles creature persistence.
type CreatureRepository struct {
	db *DB
}

// NewCreatureRepository creates a new creature repository.
func NewCreatureRepository(db *DB) *CreatureRepository {
	return &CreatureRepository{db: db}
}

// Create inserts a creature. A case-insensitive name clash yields ErrDuplicate.
func (r *CreatureRepository) Create(ctx context.Context, creature *models.Creature) error {
	if err := r.db.WithContext(ctx).Create(creature).Error; err != nil {
		return translate(err, "failed to create creature")
	}
	return nil
}

// GetByID retrieves a creature by ID.
func (r *CreatureRepository) GetByID(ctx context.Context, id string) (*models.Creature, error) {
	var creature models.Creature
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&creature).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to get creature %s", id))
	}
	return &creature, nil
}

// ExistsByName reports whether another creature already uses name, ignoring case.
func (r *CreatureRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Creature{}).Where("name_key = ?", models.NameKeyOf(name))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check creature name: %w", err)
	}
	return count > 0, nil
}

// List returns one page of creatures and the total number of matches.
func (r *CreatureRepository) List(ctx context.Context, q CreatureQuery) ([]models.Creature, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	order, ok := creatureSorts[q.Sort]
	if !ok {
		order = creatureSorts["-createdAt"]
	}

	query := r.db.WithContext(ctx).Model(&models.Creature{})
	if search := strings.TrimSpace(q.Search); search != "" {
		query = query.Where("name_key LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if q.AuthorID != "" {
		query = query.Where("author_id = ?", q.AuthorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count creatures: %w", err)
	}

	var creatures []models.Creature
	err := query.Order(order).
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&creatures).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list creatures: %w", err)
	}

	return creatures, total, nil
}

// CreatureScore is a creature id with its stored legend score.
type CreatureScore struct {
	ID          string
	LegendScore float64
}

// ListScores returns the stored legend score of every creature.
func (r *CreatureRepository) ListScores(ctx context.Context) ([]CreatureScore, error) {
	var scores []CreatureScore
	err := r.db.WithContext(ctx).
		Model(&models.Creature{}).
		Select("id", "legend_score").
		Order("created_at ASC").
		Scan(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list legend scores: %w", err)
	}
	return scores, nil
}

// Update persists the mutable fields of a creature.
func (r *CreatureRepository) Update(ctx context.Context, creature *models.Creature) error {
	creature.NameKey = models.NameKeyOf(creature.Name)
	res := r.db.WithContext(ctx).Model(creature).Select("name", "name_key", "origin").Updates(creature)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("failed to update creature %s", creature.ID))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update creature %s: %w", creature.ID, ErrNotFound)
	}
	return nil
}

// UpdateLegendScore overwrites the derived legend score.
func (r *CreatureRepository) UpdateLegendScore(ctx context.Context, id string, score float64) error {
	res := r.db.WithContext(ctx).Model(&models.Creature{}).Where("id = ?", id).Update("legend_score", score)
	if res.Error != nil {
		return fmt.Errorf("failed to update legend score of creature %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update legend score of creature %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a creature.
func (r *CreatureRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Creature{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete creature %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete creature %s: %w", id, ErrNotFound)
	}
	return nil
}
