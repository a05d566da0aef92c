// Package scheduler runs the periodic legend score reconciliation sweep.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/lorekeeper/internal/config"
	prommetrics "github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// scoreTolerance absorbs float noise when comparing stored and recomputed scores.
const scoreTolerance = 1e-9

// ScoreLister lists the stored legend score of every creature.
type ScoreLister interface {
	ListScores(ctx context.Context) ([]repository.CreatureScore, error)
}

// Recomputer rewrites one creature's legend score from its testimonies.
type Recomputer interface {
	Recompute(ctx context.Context, creatureID string) (float64, error)
}

// RunResult summarizes one reconciliation sweep.
type RunResult struct {
	Checked   int
	Corrected int
	Failed    int
}

// Service schedules legend score reconciliation.
type Service struct {
	config   config.CronJobConfig
	scores   ScoreLister
	scorer   Recomputer
	log      *logger.Logger
	cron     *cron.Cron
	schedule string
}

// NewService creates a new scheduler service.
func NewService(cfg config.CronJobConfig, scores ScoreLister, scorer Recomputer, log *logger.Logger) *Service {
	return &Service{
		config: cfg,
		scores: scores,
		scorer: scorer,
		log:    log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Legend score reconciliation is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.config.Schedule, func() {
		s.runReconciliation(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register reconciliation job: %w", err)
	}
	s.schedule = s.config.Schedule

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.schedule).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running sweep.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// Reconcile recomputes every creature's legend score once.
// A creature that fails is logged and skipped; the sweep continues.
func (s *Service) Reconcile(ctx context.Context) (RunResult, error) {
	var res RunResult

	scores, err := s.scores.ListScores(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list creatures: %w", err)
	}

	for _, cs := range scores {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		score, err := s.scorer.Recompute(ctx, cs.ID)
		if err != nil {
			res.Failed++
			prommetrics.RecordLegendScoreRecompute("reconcile", "error")
			s.log.Error().
				Err(err).
				Str("creature_id", cs.ID).
				Msg("Failed to reconcile legend score")
			continue
		}
		prommetrics.RecordLegendScoreRecompute("reconcile", "success")

		if math.Abs(score-cs.LegendScore) > scoreTolerance {
			res.Corrected++
			s.log.Warn().
				Str("creature_id", cs.ID).
				Float64("stored", cs.LegendScore).
				Float64("recomputed", score).
				Msg("Corrected stale legend score")
		}
	}

	return res, nil
}

// runReconciliation executes the reconciliation job.
func (s *Service) runReconciliation(ctx context.Context) {
	start := time.Now()

	// Track job duration and update last run timestamp on exit
	defer func() {
		prommetrics.ObserveReconcileDuration(time.Since(start).Seconds())
		prommetrics.SetReconcileLastRun()
	}()

	s.log.Info().Msg("Running legend score reconciliation job")

	res, err := s.Reconcile(ctx)
	prommetrics.RecordReconcileCorrections(res.Corrected)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Legend score reconciliation job failed")
		prommetrics.RecordReconcileRun("error")
		return
	}

	status := "success"
	if res.Failed > 0 {
		status = "partial"
	}
	prommetrics.RecordReconcileRun(status)

	s.log.Info().
		Int("checked", res.Checked).
		Int("corrected", res.Corrected).
		Int("failed", res.Failed).
		Dur("duration", time.Since(start)).
		Msg("Legend score reconciliation job completed")
}
