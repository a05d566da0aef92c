package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
	"github.com/aimd54/lorekeeper/test/mocks"
	"github.com/aimd54/lorekeeper/test/testdb"
)

func setupService(t *testing.T) (*Service, *repository.UserRepository) {
	t.Helper()
	users := repository.NewUserRepository(testdb.New(t))
	return NewService(users, auth.NewTokenIssuer("test-secret", time.Hour), logger.Nop()), users
}

func register(t *testing.T, s *Service, username string) *models.User {
	t.Helper()
	user, err := s.Register(context.Background(), RegisterInput{
		Email:    username + "@example.com",
		Username: username,
		Password: "password",
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return user
}

func TestService_RegisterValidation(t *testing.T) {
	s, _ := setupService(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "missing fields", in: RegisterInput{Email: "a@b.io"}},
		{name: "bad email", in: RegisterInput{Email: "not-an-email", Username: "odin", Password: "secret1"}},
		{name: "short password", in: RegisterInput{Email: "a@b.io", Username: "odin", Password: "12345"}},
		{name: "short username", in: RegisterInput{Email: "a@b.io", Username: "od", Password: "secret1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestService_RegisterDuplicates(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	user := register(t, s, "odin")
	if user.Role != models.RoleUser || user.Reputation != 0 {
		t.Errorf("Expected fresh USER with 0 reputation, got %s/%d", user.Role, user.Reputation)
	}
	if user.Password == "password" {
		t.Error("Expected password to be hashed")
	}

	_, err := s.Register(ctx, RegisterInput{Email: "ODIN@example.com", Username: "other", Password: "password"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}

	_, err = s.Register(ctx, RegisterInput{Email: "new@example.com", Username: "odin", Password: "password"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Expected ErrUsernameTaken, got %v", err)
	}
}

func TestService_LoginAndAuthenticate(t *testing.T) {
	s, users := setupService(t)
	ctx := context.Background()
	user := register(t, s, "freya")

	if _, err := s.Login(ctx, "freya@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := s.Login(ctx, "nobody@example.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	session, err := s.Login(ctx, "freya@example.com", "password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.Token == "" {
		t.Fatal("Expected token")
	}

	// Role changes made after login are visible through the token.
	if _, err := users.UpdateRole(ctx, user.ID, models.RoleExpert); err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}
	me, err := s.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if me.Role != models.RoleExpert {
		t.Errorf("Expected fresh role EXPERT, got %s", me.Role)
	}

	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Authenticate(ctx, session.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for deleted user, got %v", err)
	}
}

func TestService_UpdateRoleAndDelete(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	admin := register(t, s, "admin")
	target := register(t, s, "loki")

	if _, err := s.UpdateRole(ctx, admin.ID, models.RoleUser, admin.ID); !errors.Is(err, ErrSelfRoleChange) {
		t.Errorf("Expected ErrSelfRoleChange, got %v", err)
	}
	if _, err := s.UpdateRole(ctx, target.ID, models.Role("GOD"), admin.ID); err == nil {
		t.Error("Expected invalid role to fail")
	}
	if _, err := s.UpdateRole(ctx, 9999, models.RoleExpert, admin.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	updated, err := s.UpdateRole(ctx, target.ID, models.RoleExpert, admin.ID)
	if err != nil {
		t.Fatalf("UpdateRole() error = %v", err)
	}
	if updated.Role != models.RoleExpert {
		t.Errorf("Expected EXPERT, got %s", updated.Role)
	}

	if err := s.DeleteUser(ctx, admin.ID, admin.ID); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("Expected ErrSelfDelete, got %v", err)
	}
	if err := s.DeleteUser(ctx, target.ID, admin.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := s.GetUser(ctx, target.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound after delete, got %v", err)
	}
}

func TestService_ApplyReputationChange(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()
	user := register(t, s, "sigurd")

	for _, delta := range []int{101, -101} {
		var verr *ValidationError
		if _, err := s.ApplyReputationChange(ctx, user.ID, delta); !errors.As(err, &verr) {
			t.Errorf("Expected ValidationError for delta %d, got %v", delta, err)
		}
	}

	if _, err := s.ApplyReputationChange(ctx, 9999, 3); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	if _, err := s.ApplyReputationChange(ctx, user.ID, 9); err != nil {
		t.Fatalf("ApplyReputationChange() error = %v", err)
	}
	got, err := s.ApplyReputationChange(ctx, user.ID, 3)
	if err != nil {
		t.Fatalf("ApplyReputationChange() error = %v", err)
	}
	if got.Reputation != 12 || got.Role != models.RoleExpert {
		t.Errorf("Expected 12/EXPERT, got %d/%s", got.Reputation, got.Role)
	}

	got, err = s.ApplyReputationChange(ctx, user.ID, -50)
	if err != nil {
		t.Fatalf("ApplyReputationChange() error = %v", err)
	}
	if got.Reputation != -38 || got.Role != models.RoleExpert {
		t.Errorf("Expected -38/EXPERT after loss, got %d/%s", got.Reputation, got.Role)
	}
}

func TestService_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	dbErr := errors.New("connection reset")

	repo := &mocks.MockUserRepository{
		ApplyReputationDeltaFunc: func(ctx context.Context, id uint, delta int) (*models.User, bool, error) {
			return nil, false, dbErr
		},
		ListFunc: func(ctx context.Context, role models.Role) ([]models.User, error) {
			return nil, dbErr
		},
	}
	s := NewServiceWithInterfaces(repo, tokens, logger.Nop())

	if _, err := s.ApplyReputationChange(ctx, 1, 2); !errors.Is(err, dbErr) {
		t.Errorf("Expected repository error, got %v", err)
	}
	if _, err := s.ListUsers(ctx, ""); !errors.Is(err, dbErr) {
		t.Errorf("Expected repository error, got %v", err)
	}

	// A valid token for a user that no longer exists is rejected.
	token, _, err := tokens.Issue(&models.User{ID: 42, Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := s.VerifyToken(ctx, token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for deleted user, got %v", err)
	}
}
