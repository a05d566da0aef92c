// Package identity implements account registration, login and user administration.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// MaxReputationChange bounds a single reputation update.
const MaxReputationChange = 100

// Service errors.
var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrSelfRoleChange     = errors.New("cannot change your own role")
	ErrSelfDelete         = errors.New("cannot delete your own account")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserRepository is the persistence the service needs.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateRole(ctx context.Context, id uint, role models.Role) (*models.User, error)
	Delete(ctx context.Context, id uint) error
	ApplyReputationDelta(ctx context.Context, id uint, delta int) (*models.User, bool, error)
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Service handles identity operations.
type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
	log    *logger.Logger
}

// NewService creates an identity service with concrete repository types.
func NewService(users *repository.UserRepository, tokens *auth.TokenIssuer, log *logger.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log}
}

// NewServiceWithInterfaces creates an identity service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(users UserRepository, tokens *auth.TokenIssuer, log *logger.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log}
}

// Register creates a USER account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Username = strings.TrimSpace(in.Username)

	switch {
	case in.Email == "" || in.Username == "" || in.Password == "":
		return nil, invalid("email, username and password are required")
	case !emailPattern.MatchString(in.Email):
		return nil, invalid("invalid email format")
	case len(in.Password) < 6:
		return nil, invalid("password must be at least 6 characters")
	case len([]rune(in.Username)) < 3:
		return nil, invalid("username must be at least 3 characters")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:    in.Email,
		Username: in.Username,
		Password: hash,
		Role:     models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info().
		Uint("user_id", user.ID).
		Str("username", user.Username).
		Msg("Registered user")

	return user, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a bearer token to the current user record.
// Role and reputation are read fresh so changes apply before the token expires.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	return user, err
}

// VerifyToken resolves a bearer token to the caller's principal.
func (s *Service) VerifyToken(ctx context.Context, token string) (*auth.Principal, error) {
	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	p := auth.PrincipalFromUser(user)
	return &p, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns all users, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	if role != "" && !role.Valid() {
		return nil, invalid("invalid role %q", role)
	}
	return s.users.List(ctx, role)
}

// UpdateRole sets a user's role. Admins cannot change their own role.
func (s *Service) UpdateRole(ctx context.Context, id uint, role models.Role, requesterID uint) (*models.User, error) {
	if !role.Valid() {
		return nil, invalid("role must be one of USER, EXPERT, ADMIN")
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}
	if id == requesterID {
		return nil, ErrSelfRoleChange
	}

	user, err := s.users.UpdateRole(ctx, id, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("user_id", id).
		Uint("requester_id", requesterID).
		Str("role", string(role)).
		Msg("Updated user role")

	return user, nil
}

// DeleteUser removes a user. Admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, id, requesterID uint) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	if id == requesterID {
		return ErrSelfDelete
	}

	err := s.users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ApplyReputationChange adds delta to a user's reputation, promoting USER to EXPERT at the threshold.
func (s *Service) ApplyReputationChange(ctx context.Context, id uint, delta int) (*models.User, error) {
	if delta < -MaxReputationChange || delta > MaxReputationChange {
		return nil, invalid("reputation change must be between -%d and %d", MaxReputationChange, MaxReputationChange)
	}

	user, promoted, err := s.users.ApplyReputationDelta(ctx, id, delta)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordReputationUpdate(delta, promoted)

	event := s.log.Info()
	if promoted {
		event = event.Bool("promoted", true)
	}
	event.
		Uint("user_id", id).
		Int("delta", delta).
		Int("reputation", user.Reputation).
		Str("role", string(user.Role)).
		Msg("Applied reputation change")

	return user, nil
}
