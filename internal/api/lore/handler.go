// Package lore provides the lore service's REST handlers: the creature catalog,
// testimony submission and moderation, and the admin audit log.
package lore

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/internal/service/auditlog"
	"github.com/aimd54/lorekeeper/internal/service/creatures"
	"github.com/aimd54/lorekeeper/internal/service/moderation"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// CreatureService is the creature catalog.
type CreatureService interface {
	Create(ctx context.Context, in creatures.CreateInput, actor auth.Principal) (*models.Creature, error)
	Get(ctx context.Context, id string) (*models.Creature, error)
	List(ctx context.Context, in creatures.ListInput) (*creatures.ListResult, error)
	Update(ctx context.Context, id string, in creatures.UpdateInput, actor auth.Principal) (*models.Creature, error)
	Delete(ctx context.Context, id string, actor auth.Principal) error
}

// TestimonyEngine submits and moderates testimonies.
type TestimonyEngine interface {
	Create(ctx context.Context, creatureID, description string, author auth.Principal) (*models.Testimony, error)
	Get(ctx context.Context, id string) (*models.Testimony, error)
	ListByCreature(ctx context.Context, creatureID string, status models.TestimonyStatus) ([]models.Testimony, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Testimony, error)
	Validate(ctx context.Context, id string, actor auth.Principal) (*moderation.Result, error)
	Reject(ctx context.Context, id string, actor auth.Principal) (*moderation.Result, error)
	SoftDelete(ctx context.Context, id string, actor auth.Principal) (*moderation.Result, error)
	Restore(ctx context.Context, id string, actor auth.Principal) (*moderation.Result, error)
}

// AuditLog serves moderation log queries.
type AuditLog interface {
	List(ctx context.Context, filter repository.ModerationLogFilter) ([]models.ModerationLog, error)
	ListByUser(ctx context.Context, userID string) ([]models.ModerationLog, error)
	ListByTarget(ctx context.Context, targetID string) ([]models.ModerationLog, error)
	Stats(ctx context.Context) ([]models.ActionCount, error)
}

// Handler handles lore API requests.
type Handler struct {
	creatures   CreatureService
	testimonies TestimonyEngine
	audit       AuditLog
	log         *logger.Logger
}

// NewHandler creates a new lore handler.
func NewHandler(creatureSvc *creatures.Service, engine *moderation.Engine, audit *auditlog.Service, log *logger.Logger) *Handler {
	return &Handler{creatures: creatureSvc, testimonies: engine, audit: audit, log: log}
}

// NewHandlerWithInterfaces creates a new lore handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(creatureSvc CreatureService, engine TestimonyEngine, audit AuditLog, log *logger.Logger) *Handler {
	return &Handler{creatures: creatureSvc, testimonies: engine, audit: audit, log: log}
}

// handleError maps domain errors to HTTP statuses.
func (h *Handler) handleError(c *gin.Context, err error, fallback string) {
	var (
		creatureInvalid  *creatures.ValidationError
		testimonyInvalid *moderation.ValidationError
		rateLimited      *moderation.RateLimitError
	)

	switch {
	case errors.As(err, &creatureInvalid):
		h.errorResponse(c, http.StatusBadRequest, creatureInvalid.Message)
	case errors.As(err, &testimonyInvalid):
		h.errorResponse(c, http.StatusBadRequest, testimonyInvalid.Message)
	case errors.As(err, &rateLimited):
		response.ErrorWithData(c, http.StatusTooManyRequests, rateLimited.Error(), gin.H{
			"remainingMinutes": rateLimited.RemainingMinutes,
		})
	case errors.Is(err, moderation.ErrNotPending), errors.Is(err, moderation.ErrNotDeleted):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, moderation.ErrSelfModeration),
		errors.Is(err, moderation.ErrForbidden),
		errors.Is(err, creatures.ErrForbidden):
		h.errorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, moderation.ErrCreatureNotFound),
		errors.Is(err, creatures.ErrNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, creatures.ErrNameTaken):
		h.errorResponse(c, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, http.StatusInternalServerError, fallback)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	response.Error(c, statusCode, message)
}
