package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/lorekeeper/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. A taken email or username yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate(err, "failed to create user")
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to get user by id %d", id))
	}
	return &user, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "failed to get user by email")
	}
	return &user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("failed to get user by username %s", username))
	}
	return &user, nil
}

// List retrieves all users, newest first, optionally filtered by role.
func (r *UserRepository) List(ctx context.Context, role models.Role) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Order("created_at DESC").Order("id DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CountByRole returns the number of users per role.
func (r *UserRepository) CountByRole(ctx context.Context) (map[models.Role]int64, error) {
	var rows []struct {
		Role  models.Role
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}

	counts := make(map[models.Role]int64, len(rows))
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	return counts, nil
}

// UpdateRole sets the role of a user.
func (r *UserRepository) UpdateRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update role of user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("failed to update role of user %d: %w", id, ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete user %d: %w", id, ErrNotFound)
	}
	return nil
}

// ApplyReputationDelta adds delta to the user's reputation and applies the
// USER to EXPERT promotion rule in the same transaction. The returned flag
// reports whether this call promoted the user.
func (r *UserRepository) ApplyReputationDelta(ctx context.Context, id uint, delta int) (*models.User, bool, error) {
	var (
		user     models.User
		promoted bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", id).
			Update("reputation", gorm.Expr("reputation + ?", delta))
		if res.Error != nil {
			return fmt.Errorf("failed to apply reputation delta: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("failed to apply reputation delta to user %d: %w", id, ErrNotFound)
		}

		// Conditional on the committed total so concurrent deltas cannot skip or double-apply it.
		res = tx.Model(&models.User{}).
			Where("id = ? AND role = ? AND reputation >= ?", id, models.RoleUser, models.PromotionThreshold).
			Update("role", models.RoleExpert)
		if res.Error != nil {
			return fmt.Errorf("failed to promote user %d: %w", id, res.Error)
		}
		promoted = res.RowsAffected == 1

		if err := tx.First(&user, id).Error; err != nil {
			return translate(err, fmt.Sprintf("failed to reload user %d", id))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &user, promoted, nil
}
