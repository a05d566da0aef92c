package mocks

import (
	"context"
	"sync"

	"github.com/aimd54/lorekeeper/internal/auth"
)

// ReputationCall is one recorded reputation delta.
type ReputationCall struct {
	UserID string
	Delta  int
}

// MockIdentityClient is a simple mock for the identity service client
type MockIdentityClient struct {
	VerifyTokenFunc          func(ctx context.Context, token string) (*auth.Principal, error)
	ApplyReputationDeltaFunc func(ctx context.Context, userID string, delta int) error
	HealthFunc               func(ctx context.Context) bool

	mu          sync.Mutex
	calls       []ReputationCall
	verifyCount int
}

func (m *MockIdentityClient) VerifyToken(ctx context.Context, token string) (*auth.Principal, error) {
	m.mu.Lock()
	m.verifyCount++
	m.mu.Unlock()

	if m.VerifyTokenFunc != nil {
		return m.VerifyTokenFunc(ctx, token)
	}
	return nil, auth.ErrInvalidToken
}

func (m *MockIdentityClient) ApplyReputationDelta(ctx context.Context, userID string, delta int) error {
	m.mu.Lock()
	m.calls = append(m.calls, ReputationCall{UserID: userID, Delta: delta})
	m.mu.Unlock()

	if m.ApplyReputationDeltaFunc != nil {
		return m.ApplyReputationDeltaFunc(ctx, userID, delta)
	}
	return nil
}

func (m *MockIdentityClient) Health(ctx context.Context) bool {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return true
}

// ReputationCalls returns every delta sent so far, failed ones included.
func (m *MockIdentityClient) ReputationCalls() []ReputationCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ReputationCall(nil), m.calls...)
}

// VerifyCount returns how many times VerifyToken was called.
func (m *MockIdentityClient) VerifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.verifyCount
}

// MockScorer is a simple mock for the legend score recomputer
type MockScorer struct {
	RecomputeFunc func(ctx context.Context, creatureID string) (float64, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockScorer) Recompute(ctx context.Context, creatureID string) (float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, creatureID)
	m.mu.Unlock()

	if m.RecomputeFunc != nil {
		return m.RecomputeFunc(ctx, creatureID)
	}
	return 1, nil
}

// Calls returns the creature ids passed to Recompute.
func (m *MockScorer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.calls...)
}
