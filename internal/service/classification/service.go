package classification

import (
	"context"
	"sort"

	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// CreatureSource lists every creature visible to the caller's token.
type CreatureSource interface {
	GetAllCreatures(ctx context.Context, token string) ([]models.Creature, error)
}

// Report is a classification run with its summary.
type Report struct {
	TotalCreatures int
	Stats          Stats
	Result         *Result
}

// FamilyNames returns the family labels in alphabetical order.
func (r *Report) FamilyNames() []string {
	names := make([]string, 0, len(r.Result.Families))
	for name := range r.Result.Families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service classifies the lore service's creature catalog.
type Service struct {
	creatures  CreatureSource
	classifier *Classifier
	log        *logger.Logger
}

// NewService creates a classification service.
func NewService(creatures CreatureSource, classifier *Classifier, log *logger.Logger) *Service {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Service{creatures: creatures, classifier: classifier, log: log}
}

// Classify fetches all creatures with token and groups them.
func (s *Service) Classify(ctx context.Context, token string) (*Report, error) {
	creatures, err := s.creatures.GetAllCreatures(ctx, token)
	if err != nil {
		return nil, err
	}

	res := s.classifier.ClassifyAll(creatures)
	report := &Report{
		TotalCreatures: len(res.Details),
		Stats:          Summarize(res.Families),
		Result:         res,
	}

	s.log.Debug().
		Int("creatures", report.TotalCreatures).
		Int("families", report.Stats.TotalFamilies).
		Msg("Classified creatures")

	return report, nil
}
