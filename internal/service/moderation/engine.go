// Package moderation implements testimony submission and the moderation state machine.
//
// Every moderation decision commits its primary change first. Legend score
// recomputation, reputation propagation and audit logging then run as
// independent side effects whose outcomes are reported in Result, never
// as a failure of the decision itself.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// DefaultCooldown is the minimum gap between two testimonies by one author on one creature.
const DefaultCooldown = 5 * time.Minute

// Description limits.
const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 2000
)

// Reputation deltas applied by moderation decisions.
const (
	AuthorValidatedDelta = 3
	ValidatorDelta       = 1
	AuthorRejectedDelta  = -1
)

// Side effect names reported in Result.Effects.
const (
	EffectLegendScore         = "legend_score"
	EffectAuthorReputation    = "reputation:author"
	EffectValidatorReputation = "reputation:validator"
	EffectAuditLog            = "audit_log"
)

// Engine errors.
var (
	ErrNotFound         = errors.New("testimony not found")
	ErrCreatureNotFound = errors.New("creature not found")
	ErrSelfModeration   = errors.New("you cannot moderate your own testimony")
	ErrNotPending       = errors.New("only pending testimonies can be moderated")
	ErrNotDeleted       = errors.New("testimony is not deleted")
	ErrForbidden        = errors.New("insufficient permissions")
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

// RateLimitError is returned when an author testifies on the same creature too soon.
type RateLimitError struct {
	RemainingMinutes int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("you must wait %d minute(s) before testifying on this creature again", e.RemainingMinutes)
}

// TestimonyRepository is the testimony store the engine drives.
type TestimonyRepository interface {
	Create(ctx context.Context, testimony *models.Testimony) error
	GetByID(ctx context.Context, id string) (*models.Testimony, error)
	GetByIDIncludingDeleted(ctx context.Context, id string) (*models.Testimony, error)
	ListByCreature(ctx context.Context, creatureID string, status models.TestimonyStatus) ([]models.Testimony, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Testimony, error)
	FindRecent(ctx context.Context, authorID, creatureID string, since time.Time) (*models.Testimony, error)
	TransitionStatus(ctx context.Context, id string, from, to models.TestimonyStatus, moderatorID string, at time.Time) error
	SoftDelete(ctx context.Context, id, deleterID string, at time.Time) error
	Restore(ctx context.Context, id string) error
}

// CreatureReader looks up creatures.
type CreatureReader interface {
	GetByID(ctx context.Context, id string) (*models.Creature, error)
}

// LegendScorer recomputes a creature's legend score.
type LegendScorer interface {
	Recompute(ctx context.Context, creatureID string) (float64, error)
}

// ReputationClient pushes reputation deltas to the identity service.
type ReputationClient interface {
	ApplyReputationDelta(ctx context.Context, userID string, delta int) error
}

// AuditRecorder appends moderation log entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.ModerationLog) error
}

// EffectOutcome is the result of one side effect. Err is nil on success.
type EffectOutcome struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// OK reports whether the effect succeeded.
func (o EffectOutcome) OK() bool {
	return o.Err == nil
}

// Result is a committed moderation decision and the outcome of its side effects.
type Result struct {
	Testimony *models.Testimony
	Effects   []EffectOutcome
}

// Effect returns the outcome of the named side effect, if it ran.
func (r *Result) Effect(name string) (EffectOutcome, bool) {
	for _, e := range r.Effects {
		if e.Name == name {
			return e, true
		}
	}
	return EffectOutcome{}, false
}

// Failed returns the side effects that did not succeed.
func (r *Result) Failed() []EffectOutcome {
	var failed []EffectOutcome
	for _, e := range r.Effects {
		if e.Err != nil {
			failed = append(failed, e)
		}
	}
	return failed
}

// Options tunes the engine.
type Options struct {
	Cooldown time.Duration
	Now      func() time.Time
}

// Engine runs testimony submission and moderation.
type Engine struct {
	testimonies TestimonyRepository
	creatures   CreatureReader
	scorer      LegendScorer
	reputation  ReputationClient
	audit       AuditRecorder
	cooldown    time.Duration
	now         func() time.Time
	log         *logger.Logger
}

// NewEngine creates a moderation engine.
func NewEngine(
	testimonies TestimonyRepository,
	creatures CreatureReader,
	scorer LegendScorer,
	reputation ReputationClient,
	audit AuditRecorder,
	opts Options,
	log *logger.Logger,
) *Engine {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		testimonies: testimonies,
		creatures:   creatures,
		scorer:      scorer,
		reputation:  reputation,
		audit:       audit,
		cooldown:    opts.Cooldown,
		now:         opts.Now,
		log:         log,
	}
}

// Create submits a PENDING testimony. It has no side effects.
func (e *Engine) Create(ctx context.Context, creatureID, description string, author auth.Principal) (*models.Testimony, error) {
	if _, err := uuid.Parse(creatureID); err != nil {
		return nil, invalid("invalid creature id")
	}
	description = strings.TrimSpace(description)
	n := utf8.RuneCountInString(description)
	switch {
	case n == 0:
		return nil, invalid("description is required")
	case n < MinDescriptionLength:
		return nil, invalid("description must be at least %d characters", MinDescriptionLength)
	case n > MaxDescriptionLength:
		return nil, invalid("description must be at most %d characters", MaxDescriptionLength)
	}

	if _, err := e.creatures.GetByID(ctx, creatureID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreatureNotFound
		}
		return nil, err
	}

	now := e.now().UTC()
	recent, err := e.testimonies.FindRecent(ctx, author.ID, creatureID, now.Add(-e.cooldown))
	if err != nil {
		return nil, err
	}
	if recent != nil {
		if elapsed := now.Sub(recent.CreatedAt); elapsed < e.cooldown {
			metrics.RecordTestimonyRateLimited()
			return nil, &RateLimitError{RemainingMinutes: remainingMinutes(e.cooldown - elapsed)}
		}
	}

	testimony := &models.Testimony{
		CreatureID:  creatureID,
		AuthorID:    author.ID,
		Description: description,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.testimonies.Create(ctx, testimony); err != nil {
		return nil, err
	}

	metrics.RecordTestimonyCreated()
	e.log.Info().
		Str("testimony_id", testimony.ID).
		Str("creature_id", creatureID).
		Str("author_id", author.ID).
		Msg("Created testimony")

	return testimony, nil
}

// remainingMinutes rounds a positive wait up to whole minutes.
func remainingMinutes(wait time.Duration) int {
	m := int(math.Ceil(wait.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

// Get returns a live testimony.
func (e *Engine) Get(ctx context.Context, id string) (*models.Testimony, error) {
	if err := validateTestimonyID(id); err != nil {
		return nil, err
	}
	t, err := e.testimonies.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListByCreature returns a creature's live testimonies, optionally filtered by status.
func (e *Engine) ListByCreature(ctx context.Context, creatureID string, status models.TestimonyStatus) ([]models.Testimony, error) {
	if _, err := uuid.Parse(creatureID); err != nil {
		return nil, invalid("invalid creature id")
	}
	if status != "" && !status.Valid() {
		return nil, invalid("invalid status %q", status)
	}
	if _, err := e.creatures.GetByID(ctx, creatureID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreatureNotFound
		}
		return nil, err
	}
	return e.testimonies.ListByCreature(ctx, creatureID, status)
}

// ListByAuthor returns an author's live testimonies.
func (e *Engine) ListByAuthor(ctx context.Context, authorID string) ([]models.Testimony, error) {
	return e.testimonies.ListByAuthor(ctx, authorID)
}

// Validate moves a PENDING testimony to VALIDATED.
// The author gains 3 reputation; an EXPERT validator gains 1.
func (e *Engine) Validate(ctx context.Context, id string, actor auth.Principal) (*Result, error) {
	t, err := e.loadForDecision(ctx, id, actor, models.ActionValidate)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := e.testimonies.TransitionStatus(ctx, id, models.StatusPending, models.StatusValidated, actor.ID, now); err != nil {
		return nil, e.transitionFailed(models.ActionValidate, err)
	}
	t.Status = models.StatusValidated
	t.ValidatedBy = &actor.ID
	t.ValidatedAt = &now
	t.UpdatedAt = now

	res := &Result{Testimony: t}
	res.Effects = append(res.Effects, e.recomputeLegend(ctx, t))
	res.Effects = append(res.Effects, e.pushReputation(ctx, t, EffectAuthorReputation, t.AuthorID, AuthorValidatedDelta))
	if actor.Role == models.RoleExpert {
		res.Effects = append(res.Effects, e.pushReputation(ctx, t, EffectValidatorReputation, actor.ID, ValidatorDelta))
	}
	res.Effects = append(res.Effects, e.record(ctx, actor.ID, models.ActionValidate, t, datatypes.JSONMap{
		"validatorRole":  string(actor.Role),
		"creatureId":     t.CreatureID,
		"previousStatus": string(models.StatusPending),
		"newStatus":      string(models.StatusValidated),
	}))

	e.finish(models.ActionValidate, actor, res)
	return res, nil
}

// Reject moves a PENDING testimony to REJECTED. The author loses 1 reputation.
func (e *Engine) Reject(ctx context.Context, id string, actor auth.Principal) (*Result, error) {
	t, err := e.loadForDecision(ctx, id, actor, models.ActionReject)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := e.testimonies.TransitionStatus(ctx, id, models.StatusPending, models.StatusRejected, actor.ID, now); err != nil {
		return nil, e.transitionFailed(models.ActionReject, err)
	}
	t.Status = models.StatusRejected
	t.ValidatedBy = &actor.ID
	t.ValidatedAt = &now
	t.UpdatedAt = now

	res := &Result{Testimony: t}
	res.Effects = append(res.Effects, e.recomputeLegend(ctx, t))
	res.Effects = append(res.Effects, e.pushReputation(ctx, t, EffectAuthorReputation, t.AuthorID, AuthorRejectedDelta))
	res.Effects = append(res.Effects, e.record(ctx, actor.ID, models.ActionReject, t, datatypes.JSONMap{
		"creatureId":     t.CreatureID,
		"previousStatus": string(models.StatusPending),
		"newStatus":      string(models.StatusRejected),
	}))

	e.finish(models.ActionReject, actor, res)
	return res, nil
}

// SoftDelete hides a testimony of any status. Reputation is untouched.
func (e *Engine) SoftDelete(ctx context.Context, id string, actor auth.Principal) (*Result, error) {
	if !actor.CanModerate() {
		return nil, ErrForbidden
	}
	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := e.testimonies.SoftDelete(ctx, id, actor.ID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordModerationAction(string(models.ActionDelete), "conflict")
			return nil, ErrNotFound
		}
		metrics.RecordModerationAction(string(models.ActionDelete), "error")
		return nil, err
	}
	t.DeletedAt = &now
	t.DeletedBy = &actor.ID
	t.UpdatedAt = now

	res := &Result{Testimony: t}
	res.Effects = append(res.Effects, e.recomputeLegend(ctx, t))
	res.Effects = append(res.Effects, e.record(ctx, actor.ID, models.ActionDelete, t, datatypes.JSONMap{
		"creatureId":     t.CreatureID,
		"previousStatus": string(t.Status),
	}))

	e.finish(models.ActionDelete, actor, res)
	return res, nil
}

// Restore un-deletes a testimony with its prior status. Reputation is untouched.
func (e *Engine) Restore(ctx context.Context, id string, actor auth.Principal) (*Result, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateTestimonyID(id); err != nil {
		return nil, err
	}
	t, err := e.testimonies.GetByIDIncludingDeleted(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsDeleted() {
		return nil, ErrNotDeleted
	}

	if err := e.testimonies.Restore(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordModerationAction(string(models.ActionRestore), "conflict")
			return nil, ErrNotDeleted
		}
		metrics.RecordModerationAction(string(models.ActionRestore), "error")
		return nil, err
	}
	t.DeletedAt = nil
	t.DeletedBy = nil
	t.UpdatedAt = e.now().UTC()

	res := &Result{Testimony: t}
	res.Effects = append(res.Effects, e.recomputeLegend(ctx, t))
	res.Effects = append(res.Effects, e.record(ctx, actor.ID, models.ActionRestore, t, datatypes.JSONMap{
		"creatureId": t.CreatureID,
		"status":     string(t.Status),
	}))

	e.finish(models.ActionRestore, actor, res)
	return res, nil
}

// loadForDecision runs the guards shared by validate and reject.
func (e *Engine) loadForDecision(ctx context.Context, id string, actor auth.Principal, action models.ModerationAction) (*models.Testimony, error) {
	if !actor.CanModerate() {
		return nil, ErrForbidden
	}
	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.AuthorID == actor.ID {
		metrics.RecordModerationAction(string(action), "forbidden")
		return nil, ErrSelfModeration
	}
	if t.Status != models.StatusPending {
		metrics.RecordModerationAction(string(action), "conflict")
		return nil, ErrNotPending
	}
	return t, nil
}

// transitionFailed maps a lost compare-and-swap to ErrNotPending.
func (e *Engine) transitionFailed(action models.ModerationAction, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		metrics.RecordModerationAction(string(action), "conflict")
		return ErrNotPending
	}
	metrics.RecordModerationAction(string(action), "error")
	return err
}

func (e *Engine) recomputeLegend(ctx context.Context, t *models.Testimony) EffectOutcome {
	score, err := e.scorer.Recompute(ctx, t.CreatureID)
	if err != nil {
		metrics.RecordLegendScoreRecompute("moderation", "error")
		metrics.RecordSideEffectFailure(EffectLegendScore)
		e.log.Error().
			Err(err).
			Str("effect", EffectLegendScore).
			Str("testimony_id", t.ID).
			Str("creature_id", t.CreatureID).
			Msg("Failed to recompute legend score")
		return EffectOutcome{Name: EffectLegendScore, Err: err}
	}

	metrics.RecordLegendScoreRecompute("moderation", "success")
	e.log.Debug().
		Str("creature_id", t.CreatureID).
		Float64("legend_score", score).
		Msg("Recomputed legend score")
	return EffectOutcome{Name: EffectLegendScore}
}

// pushReputation sends one delta. Failures are not retried.
func (e *Engine) pushReputation(ctx context.Context, t *models.Testimony, effect, userID string, delta int) EffectOutcome {
	if err := e.reputation.ApplyReputationDelta(ctx, userID, delta); err != nil {
		metrics.RecordSideEffectFailure(effect)
		e.log.Error().
			Err(err).
			Str("effect", effect).
			Str("testimony_id", t.ID).
			Str("user_id", userID).
			Int("delta", delta).
			Msg("Failed to apply reputation change")
		return EffectOutcome{Name: effect, Err: err}
	}
	return EffectOutcome{Name: effect}
}

func (e *Engine) record(ctx context.Context, actorID string, action models.ModerationAction, t *models.Testimony, meta datatypes.JSONMap) EffectOutcome {
	err := e.audit.Record(ctx, &models.ModerationLog{
		UserID:     actorID,
		Action:     action,
		TargetID:   t.ID,
		TargetType: models.TargetTestimony,
		Metadata:   meta,
		Timestamp:  e.now().UTC(),
	})
	if err != nil {
		metrics.RecordSideEffectFailure(EffectAuditLog)
		return EffectOutcome{Name: EffectAuditLog, Err: err}
	}
	return EffectOutcome{Name: EffectAuditLog}
}

func (e *Engine) finish(action models.ModerationAction, actor auth.Principal, res *Result) {
	outcome := "success"
	if len(res.Failed()) > 0 {
		outcome = "partial"
	}
	metrics.RecordModerationAction(string(action), outcome)

	e.log.Info().
		Str("action", string(action)).
		Str("testimony_id", res.Testimony.ID).
		Str("actor_id", actor.ID).
		Str("status", string(res.Testimony.Status)).
		Int("failed_effects", len(res.Failed())).
		Msg("Moderated testimony")
}

func validateTestimonyID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid("invalid testimony id")
	}
	return nil
}
