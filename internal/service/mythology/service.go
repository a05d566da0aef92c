// Package mythology aggregates bestiary statistics from the lore service.
package mythology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	loreclient "github.com/aimd54/lorekeeper/internal/client/lore"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// DefaultConcurrency bounds per-creature testimony fetches.
const DefaultConcurrency = 8

// LoreClient reads creatures and testimonies on behalf of the caller.
type LoreClient interface {
	GetAllCreatures(ctx context.Context, token string) ([]models.Creature, error)
	GetTestimoniesByCreature(ctx context.Context, token, creatureID string) ([]models.Testimony, error)
}

// StatsCache stores serialized stats.
type StatsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CreatureStats is the testimony breakdown for one creature.
type CreatureStats struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Origin               string  `json:"origin,omitempty"`
	LegendScore          float64 `json:"legendScore"`
	TotalTestimonies     int     `json:"totalTestimonies"`
	ValidatedTestimonies int     `json:"validatedTestimonies"`
	PendingTestimonies   int     `json:"pendingTestimonies"`
	RejectedTestimonies  int     `json:"rejectedTestimonies"`
}

// Stats is the bestiary-wide summary.
type Stats struct {
	TotalCreatures                int             `json:"totalCreatures"`
	AverageTestimoniesPerCreature float64         `json:"averageTestimoniesPerCreature"`
	TotalTestimonies              int             `json:"totalTestimonies"`
	TotalValidatedTestimonies     int             `json:"totalValidatedTestimonies"`
	TotalPendingTestimonies       int             `json:"totalPendingTestimonies"`
	TotalRejectedTestimonies      int             `json:"totalRejectedTestimonies"`
	Creatures                     []CreatureStats `json:"creatures"`
}

// Service computes bestiary statistics.
type Service struct {
	lore        LoreClient
	cache       StatsCache
	cacheTTL    time.Duration
	concurrency int
	log         *logger.Logger
}

// NewService creates a mythology service. A nil cache or zero TTL disables caching.
func NewService(lore LoreClient, cache StatsCache, cacheTTL time.Duration, concurrency int, log *logger.Logger) *Service {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		lore:        lore,
		cache:       cache,
		cacheTTL:    cacheTTL,
		concurrency: concurrency,
		log:         log,
	}
}

// Stats returns per-creature testimony counts and global totals.
// Authentication and availability failures abort the run; any other
// per-creature failure counts that creature as having no testimonies.
func (s *Service) Stats(ctx context.Context, token string) (*Stats, error) {
	key := statsKey(token)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	creatures, err := s.lore.GetAllCreatures(ctx, token)
	if err != nil {
		return nil, err
	}

	perCreature := make([]CreatureStats, len(creatures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, creature := range creatures {
		g.Go(func() error {
			testimonies, err := s.lore.GetTestimoniesByCreature(gctx, token, creature.ID)
			if err != nil {
				if errors.Is(err, loreclient.ErrInvalidToken) || errors.Is(err, loreclient.ErrUnavailable) {
					return err
				}
				s.log.Warn().
					Err(err).
					Str("creature_id", creature.ID).
					Msg("Failed to fetch testimonies, counting as zero")
				testimonies = nil
			}
			perCreature[i] = creatureStats(creature, testimonies)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := aggregate(perCreature)
	s.toCache(ctx, key, stats)

	s.log.Debug().
		Int("creatures", stats.TotalCreatures).
		Int("testimonies", stats.TotalTestimonies).
		Msg("Generated mythology stats")

	return stats, nil
}

func creatureStats(c models.Creature, testimonies []models.Testimony) CreatureStats {
	cs := CreatureStats{
		ID:               c.ID,
		Name:             c.Name,
		Origin:           c.Origin,
		LegendScore:      c.LegendScore,
		TotalTestimonies: len(testimonies),
	}
	for _, t := range testimonies {
		switch t.Status {
		case models.StatusValidated:
			cs.ValidatedTestimonies++
		case models.StatusPending:
			cs.PendingTestimonies++
		case models.StatusRejected:
			cs.RejectedTestimonies++
		}
	}
	return cs
}

func aggregate(creatures []CreatureStats) *Stats {
	stats := &Stats{
		TotalCreatures: len(creatures),
		Creatures:      creatures,
	}
	if stats.Creatures == nil {
		stats.Creatures = []CreatureStats{}
	}
	for _, c := range creatures {
		stats.TotalTestimonies += c.TotalTestimonies
		stats.TotalValidatedTestimonies += c.ValidatedTestimonies
		stats.TotalPendingTestimonies += c.PendingTestimonies
		stats.TotalRejectedTestimonies += c.RejectedTestimonies
	}
	if stats.TotalCreatures > 0 {
		avg := float64(stats.TotalTestimonies) / float64(stats.TotalCreatures)
		stats.AverageTestimoniesPerCreature = math.Round(avg*100) / 100
	}
	return stats
}

// statsKey scopes cached stats to the caller's token.
func statsKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "mythology:stats:" + hex.EncodeToString(sum[:])
}

func (s *Service) fromCache(ctx context.Context, key string) (*Stats, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (s *Service) toCache(ctx context.Context, key string, stats *Stats) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache mythology stats")
	}
}
