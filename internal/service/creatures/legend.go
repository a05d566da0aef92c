package creatures

import (
	"context"
	"fmt"

	"github.com/aimd54/lorekeeper/internal/models"
)

// ValidatedPerPoint is how many validated testimonies raise the legend score by one.
const ValidatedPerPoint = 5

// LegendScore derives a creature's legend score from its validated testimony count.
func LegendScore(validated int64) float64 {
	return models.BaseLegendScore + float64(validated)/ValidatedPerPoint
}

// TestimonyCounter counts live testimonies by status.
type TestimonyCounter interface {
	CountByCreatureAndStatus(ctx context.Context, creatureID string, status models.TestimonyStatus) (int64, error)
}

// ScoreWriter persists a creature's legend score.
type ScoreWriter interface {
	UpdateLegendScore(ctx context.Context, id string, score float64) error
}

// Scorer recomputes legend scores from committed testimony state.
// A recompute always reads the full count, so replaying it is harmless.
type Scorer struct {
	testimonies TestimonyCounter
	creatures   ScoreWriter
}

// NewScorer creates a legend score recomputer.
func NewScorer(testimonies TestimonyCounter, creatures ScoreWriter) *Scorer {
	return &Scorer{testimonies: testimonies, creatures: creatures}
}

// Recompute counts validated, non-deleted testimonies and writes the resulting score.
func (s *Scorer) Recompute(ctx context.Context, creatureID string) (float64, error) {
	validated, err := s.testimonies.CountByCreatureAndStatus(ctx, creatureID, models.StatusValidated)
	if err != nil {
		return 0, fmt.Errorf("failed to count validated testimonies: %w", err)
	}

	score := LegendScore(validated)
	if err := s.creatures.UpdateLegendScore(ctx, creatureID, score); err != nil {
		return 0, err
	}
	return score, nil
}
