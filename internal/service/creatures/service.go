// Package creatures manages the creature catalog and its derived legend scores.
package creatures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// Field limits.
const (
	MinNameLength   = 2
	MaxNameLength   = 100
	MaxOriginLength = 200
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service errors.
var (
	ErrNotFound  = errors.New("creature not found")
	ErrNameTaken = errors.New("a creature with this name already exists")
	ErrForbidden = errors.New("only the author or an admin may modify this creature")
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

// ValidateID rejects ids that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid("invalid creature id")
	}
	return nil
}

// Repository is the creature persistence the service needs.
type Repository interface {
	Create(ctx context.Context, creature *models.Creature) error
	GetByID(ctx context.Context, id string) (*models.Creature, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context, q repository.CreatureQuery) ([]models.Creature, int64, error)
	Update(ctx context.Context, creature *models.Creature) error
	Delete(ctx context.Context, id string) error
}

// CreateInput is a new creature.
type CreateInput struct {
	Name   string `json:"name"`
	Origin string `json:"origin"`
}

// UpdateInput changes a creature. Nil fields are left untouched.
type UpdateInput struct {
	Name   *string `json:"name"`
	Origin *string `json:"origin"`
}

// ListInput filters a creature listing.
type ListInput struct {
	Page     int
	Limit    int
	Sort     string
	Search   string
	AuthorID string
}

// ListResult is one page of creatures.
type ListResult struct {
	Creatures []models.Creature
	Page      int
	Limit     int
	Total     int64
}

// Service handles creature operations.
type Service struct {
	creatures Repository
	log       *logger.Logger
}

// NewService creates a creature service with concrete repository types.
func NewService(creatures *repository.CreatureRepository, log *logger.Logger) *Service {
	return &Service{creatures: creatures, log: log}
}

// NewServiceWithInterfaces creates a creature service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(creatures Repository, log *logger.Logger) *Service {
	return &Service{creatures: creatures, log: log}
}

// Create adds a creature authored by actor.
func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Principal) (*models.Creature, error) {
	name := strings.TrimSpace(in.Name)
	origin := strings.TrimSpace(in.Origin)
	if err := validateFields(name, origin); err != nil {
		return nil, err
	}

	taken, err := s.creatures.ExistsByName(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameTaken
	}

	creature := &models.Creature{
		AuthorID:    actor.ID,
		Name:        name,
		Origin:      origin,
		LegendScore: models.BaseLegendScore,
	}
	if err := s.creatures.Create(ctx, creature); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrNameTaken
		}
		return nil, err
	}

	s.log.Info().
		Str("creature_id", creature.ID).
		Str("name", creature.Name).
		Str("author_id", actor.ID).
		Msg("Created creature")

	return creature, nil
}

// Get returns a creature by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Creature, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	creature, err := s.creatures.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return creature, err
}

// List returns a page of creatures. Page and limit are clamped to sane bounds.
func (s *Service) List(ctx context.Context, in ListInput) (*ListResult, error) {
	if in.Sort != "" && !repository.IsValidCreatureSort(in.Sort) {
		return nil, invalid("invalid sort %q", in.Sort)
	}
	if in.Page < 1 {
		in.Page = 1
	}
	switch {
	case in.Limit < 1:
		in.Limit = DefaultPageSize
	case in.Limit > MaxPageSize:
		in.Limit = MaxPageSize
	}

	creatures, total, err := s.creatures.List(ctx, repository.CreatureQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Sort:     in.Sort,
		Search:   in.Search,
		AuthorID: in.AuthorID,
	})
	if err != nil {
		return nil, err
	}
	if creatures == nil {
		creatures = []models.Creature{}
	}

	return &ListResult{Creatures: creatures, Page: in.Page, Limit: in.Limit, Total: total}, nil
}

// Update renames or re-origins a creature. Only its author or an admin may do so.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, actor auth.Principal) (*models.Creature, error) {
	creature, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if creature.AuthorID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	name := creature.Name
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	origin := creature.Origin
	if in.Origin != nil {
		origin = strings.TrimSpace(*in.Origin)
	}
	if err := validateFields(name, origin); err != nil {
		return nil, err
	}

	if name != creature.Name {
		taken, err := s.creatures.ExistsByName(ctx, name, creature.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNameTaken
		}
	}

	creature.Name = name
	creature.Origin = origin
	if err := s.creatures.Update(ctx, creature); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrNameTaken
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	return creature, nil
}

// Delete removes a creature. Its testimonies are left in place.
func (s *Service) Delete(ctx context.Context, id string, actor auth.Principal) error {
	creature, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if creature.AuthorID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}

	if err := s.creatures.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.log.Info().
		Str("creature_id", id).
		Str("actor_id", actor.ID).
		Msg("Deleted creature")

	return nil
}

func validateFields(name, origin string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n < MinNameLength:
		return invalid("name must be at least %d characters", MinNameLength)
	case n > MaxNameLength:
		return invalid("name must be at most %d characters", MaxNameLength)
	case utf8.RuneCountInString(origin) > MaxOriginLength:
		return invalid("origin must be at most %d characters", MaxOriginLength)
	}
	return nil
}
