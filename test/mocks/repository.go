package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
)

// MockUserRepository is a simple mock for the user repository
type MockUserRepository struct {
	CreateFunc               func(ctx context.Context, user *models.User) error
	GetByIDFunc              func(ctx context.Context, id uint) (*models.User, error)
	GetByEmailFunc           func(ctx context.Context, email string) (*models.User, error)
	GetByUsernameFunc        func(ctx context.Context, username string) (*models.User, error)
	ListFunc                 func(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateRoleFunc           func(ctx context.Context, id uint, role models.Role) (*models.User, error)
	DeleteFunc               func(ctx context.Context, id uint) error
	ApplyReputationDeltaFunc func(ctx context.Context, id uint, delta int) (*models.User, bool, error)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, role models.Role) ([]models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, role)
	}
	return []models.User{}, nil
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) Delete(ctx context.Context, id uint) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ApplyReputationDelta(ctx context.Context, id uint, delta int) (*models.User, bool, error) {
	if m.ApplyReputationDeltaFunc != nil {
		return m.ApplyReputationDeltaFunc(ctx, id, delta)
	}
	return nil, false, repository.ErrNotFound
}

// MockModerationLogRepository is an in-memory audit log store
type MockModerationLogRepository struct {
	mu      sync.Mutex
	entries []models.ModerationLog
	nextID  uint

	// CreateErr, when set, makes every Create fail.
	CreateErr error
}

// NewMockModerationLogRepository creates an empty mock audit log
func NewMockModerationLogRepository() *MockModerationLogRepository {
	return &MockModerationLogRepository{nextID: 1}
}

func (m *MockModerationLogRepository) Create(ctx context.Context, entry *models.ModerationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.TargetType == "" {
		entry.TargetType = models.TargetTestimony
	}
	entry.ID = m.nextID
	m.nextID++
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MockModerationLogRepository) List(ctx context.Context, filter repository.ModerationLogFilter) ([]models.ModerationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.ModerationLog{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockModerationLogRepository) Count(ctx context.Context, filter repository.ModerationLogFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.entries {
		if matches(e, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MockModerationLogRepository) CountByAction(ctx context.Context) ([]models.ActionCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[models.ModerationAction]int64{}
	for _, e := range m.entries {
		counts[e.Action]++
	}
	out := make([]models.ActionCount, 0, len(counts))
	for action, n := range counts {
		out = append(out, models.ActionCount{Action: action, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

// Entries returns a copy of every stored entry in insertion order.
func (m *MockModerationLogRepository) Entries() []models.ModerationLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.ModerationLog(nil), m.entries...)
}

func matches(e models.ModerationLog, f repository.ModerationLogFilter) bool {
	switch {
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.TargetID != "" && e.TargetID != f.TargetID:
		return false
	case f.TargetType != "" && e.TargetType != f.TargetType:
		return false
	case f.Start != nil && e.Timestamp.Before(*f.Start):
		return false
	case f.End != nil && e.Timestamp.After(*f.End):
		return false
	}
	return true
}
