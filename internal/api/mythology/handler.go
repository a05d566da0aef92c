// Package mythology provides the mythology service's REST handlers: bestiary
// statistics and creature classification.
package mythology

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	loreclient "github.com/aimd54/lorekeeper/internal/client/lore"
	"github.com/aimd54/lorekeeper/internal/service/classification"
	"github.com/aimd54/lorekeeper/internal/service/mythology"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// StatsService computes bestiary statistics.
type StatsService interface {
	Stats(ctx context.Context, token string) (*mythology.Stats, error)
}

// ClassificationService groups creatures into families.
type ClassificationService interface {
	Classify(ctx context.Context, token string) (*classification.Report, error)
}

// Handler handles mythology API requests.
type Handler struct {
	stats      StatsService
	classifier ClassificationService
	log        *logger.Logger
}

// NewHandler creates a new mythology handler.
func NewHandler(stats *mythology.Service, classifier *classification.Service, log *logger.Logger) *Handler {
	return &Handler{stats: stats, classifier: classifier, log: log}
}

// NewHandlerWithInterfaces creates a new mythology handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(stats StatsService, classifier ClassificationService, log *logger.Logger) *Handler {
	return &Handler{stats: stats, classifier: classifier, log: log}
}

// classificationResponse is the body of GET /mythology/classification.
type classificationResponse struct {
	TotalCreatures     int                                 `json:"totalCreatures"`
	TotalFamilies      int                                 `json:"totalFamilies"`
	TotalSubtypes      int                                 `json:"totalSubtypes"`
	FamilyDistribution map[string]int                      `json:"familyDistribution"`
	Classification     classificationTree                  `json:"classification"`
	Details            []classification.ClassifiedCreature `json:"details,omitempty"`
}

type classificationTree struct {
	Families classification.Families `json:"families"`
}

// Stats returns per-creature testimony counts and global totals.
// GET /mythology/stats.
func (h *Handler) Stats(c *gin.Context, token string) {
	stats, err := h.stats.Stats(c.Request.Context(), token)
	if err != nil {
		h.handleError(c, err, "Failed to compute mythology stats")
		return
	}

	response.OK(c, "", stats)
}

// Classification groups every creature by family and subtype.
// GET /mythology/classification?details=true.
func (h *Handler) Classification(c *gin.Context, token string) {
	report, err := h.classifier.Classify(c.Request.Context(), token)
	if err != nil {
		h.handleError(c, err, "Failed to classify creatures")
		return
	}

	body := classificationResponse{
		TotalCreatures:     report.TotalCreatures,
		TotalFamilies:      report.Stats.TotalFamilies,
		TotalSubtypes:      report.Stats.TotalSubtypes,
		FamilyDistribution: report.Stats.FamilyDistribution,
		Classification:     classificationTree{Families: report.Result.Families},
	}
	if c.Query("details") == "true" {
		body.Details = report.Result.Details
		if body.Details == nil {
			body.Details = []classification.ClassifiedCreature{}
		}
	}

	response.OK(c, "", body)
}

// Families lists the family names and their creature counts.
// GET /mythology/classification/families.
func (h *Handler) Families(c *gin.Context, token string) {
	report, err := h.classifier.Classify(c.Request.Context(), token)
	if err != nil {
		h.handleError(c, err, "Failed to classify creatures")
		return
	}

	response.OK(c, "", gin.H{
		"families":     report.FamilyNames(),
		"distribution": report.Stats.FamilyDistribution,
	})
}

// handleError maps lore client failures to HTTP statuses.
func (h *Handler) handleError(c *gin.Context, err error, fallback string) {
	var remote *loreclient.RemoteError
	switch {
	case errors.Is(err, loreclient.ErrInvalidToken):
		h.errorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, loreclient.ErrTimeout):
		h.errorResponse(c, http.StatusGatewayTimeout, "Lore service timed out")
	case errors.Is(err, loreclient.ErrUnavailable):
		h.errorResponse(c, http.StatusServiceUnavailable, "Lore service unavailable")
	case errors.As(err, &remote):
		h.log.Warn().Err(err).Int("status", remote.Status).Msg(fallback)
		h.errorResponse(c, http.StatusBadGateway, remote.Message)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, http.StatusInternalServerError, fallback)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	response.Error(c, statusCode, message)
}
