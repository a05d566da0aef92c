package moderation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/internal/service/auditlog"
	"github.com/aimd54/lorekeeper/internal/service/creatures"
	"github.com/aimd54/lorekeeper/pkg/logger"
	"github.com/aimd54/lorekeeper/test/mocks"
	"github.com/aimd54/lorekeeper/test/testdb"
)

var (
	userB  = auth.Principal{ID: "2", Username: "bjorn", Role: models.RoleUser}
	userC  = auth.Principal{ID: "3", Username: "cora", Role: models.RoleUser}
	expert = auth.Principal{ID: "5", Username: "eira", Role: models.RoleExpert}
	admin  = auth.Principal{ID: "1", Username: "root", Role: models.RoleAdmin}
)

const sighting = "Seen circling the northern fjord at dusk"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine      *Engine
	identity    *mocks.MockIdentityClient
	audit       *mocks.MockModerationLogRepository
	creatures   *repository.CreatureRepository
	testimonies *repository.TestimonyRepository
	clock       *clock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)

	f := &fixture{
		identity:    &mocks.MockIdentityClient{},
		audit:       mocks.NewMockModerationLogRepository(),
		creatures:   repository.NewCreatureRepository(db),
		testimonies: repository.NewTestimonyRepository(db),
		clock:       &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.engine = NewEngine(
		f.testimonies,
		f.creatures,
		creatures.NewScorer(f.testimonies, f.creatures),
		f.identity,
		auditlog.NewServiceWithInterfaces(f.audit, logger.Nop()),
		Options{Now: f.clock.Now},
		logger.Nop(),
	)
	return f
}

func (f *fixture) creature(t *testing.T, name string) *models.Creature {
	t.Helper()
	c := &models.Creature{Name: name, Origin: "Nordique", AuthorID: admin.ID, LegendScore: models.BaseLegendScore}
	if err := f.creatures.Create(context.Background(), c); err != nil {
		t.Fatalf("Create creature error = %v", err)
	}
	return c
}

func (f *fixture) legendScore(t *testing.T, creatureID string) float64 {
	t.Helper()
	c, err := f.creatures.GetByID(context.Background(), creatureID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return c.LegendScore
}

func TestEngine_DragonScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	t1, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() by B error = %v", err)
	}
	t2, err := f.engine.Create(ctx, dragon.ID, "Heard roaring beneath the glacier", userC)
	if err != nil {
		t.Fatalf("Create() by C error = %v", err)
	}
	if t1.Status != models.StatusPending {
		t.Errorf("Expected PENDING, got %s", t1.Status)
	}

	res, err := f.engine.Validate(ctx, t1.ID, expert)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(res.Failed()) != 0 {
		t.Errorf("Expected no failed effects, got %+v", res.Failed())
	}
	if res.Testimony.Status != models.StatusValidated || *res.Testimony.ValidatedBy != expert.ID {
		t.Errorf("Unexpected validated testimony %+v", res.Testimony)
	}

	if _, err := f.engine.Reject(ctx, t2.ID, expert); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	if score := f.legendScore(t, dragon.ID); math.Abs(score-1.2) > 1e-9 {
		t.Errorf("Expected legend score 1.2, got %v", score)
	}

	want := []mocks.ReputationCall{
		{UserID: userB.ID, Delta: AuthorValidatedDelta},
		{UserID: expert.ID, Delta: ValidatorDelta},
		{UserID: userC.ID, Delta: AuthorRejectedDelta},
	}
	got := f.identity.ReputationCalls()
	if len(got) != len(want) {
		t.Fatalf("Expected %d reputation calls, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reputation call %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	entries := f.audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(entries))
	}
	v := entries[0]
	if v.Action != models.ActionValidate || v.UserID != expert.ID || v.TargetID != t1.ID {
		t.Errorf("Unexpected validate entry %+v", v)
	}
	if v.Metadata["validatorRole"] != "EXPERT" || v.Metadata["newStatus"] != "VALIDATED" || v.Metadata["creatureId"] != dragon.ID {
		t.Errorf("Unexpected validate metadata %+v", v.Metadata)
	}
	if entries[1].Metadata["newStatus"] != "REJECTED" {
		t.Errorf("Unexpected reject metadata %+v", entries[1].Metadata)
	}
}

func TestEngine_AdminValidatorEarnsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	res, err := f.engine.Validate(ctx, tm.ID, admin)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, ran := res.Effect(EffectValidatorReputation); ran {
		t.Error("Expected no validator reputation effect for an admin")
	}
	if calls := f.identity.ReputationCalls(); len(calls) != 1 || calls[0].UserID != userB.ID {
		t.Errorf("Expected only the author to be credited, got %+v", calls)
	}
}

func TestEngine_ValidatePreconditions(t *testing.T) {
	t.Run("self moderation on a pending testimony", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		dragon := f.creature(t, "Dragon")

		tm, err := f.engine.Create(ctx, dragon.ID, sighting, expert)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := f.engine.Validate(ctx, tm.ID, expert); !errors.Is(err, ErrSelfModeration) {
			t.Errorf("Expected ErrSelfModeration, got %v", err)
		}
		if _, err := f.engine.Reject(ctx, tm.ID, expert); !errors.Is(err, ErrSelfModeration) {
			t.Errorf("Expected ErrSelfModeration on reject, got %v", err)
		}
		if len(f.identity.ReputationCalls()) != 0 || len(f.audit.Entries()) != 0 {
			t.Error("Expected no side effects for a refused decision")
		}
	})

	t.Run("other moderator on a non-pending testimony", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		dragon := f.creature(t, "Dragon")

		tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := f.engine.Reject(ctx, tm.ID, admin); err != nil {
			t.Fatalf("Reject() error = %v", err)
		}
		if _, err := f.engine.Validate(ctx, tm.ID, expert); !errors.Is(err, ErrNotPending) {
			t.Errorf("Expected ErrNotPending, got %v", err)
		}
	})

	t.Run("plain user", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		dragon := f.creature(t, "Dragon")

		tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := f.engine.Validate(ctx, tm.ID, userC); !errors.Is(err, ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
	})
}

func TestEngine_DeleteAndRestore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.engine.Validate(ctx, tm.ID, expert); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	callsBefore := len(f.identity.ReputationCalls())

	if _, err := f.engine.SoftDelete(ctx, tm.ID, userC); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for a plain user, got %v", err)
	}
	if _, err := f.engine.SoftDelete(ctx, tm.ID, expert); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if score := f.legendScore(t, dragon.ID); score != 1 {
		t.Errorf("Expected deleted testimony to stop counting, score = %v", score)
	}
	if _, err := f.engine.Get(ctx, tm.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted testimony to be hidden, got %v", err)
	}
	if _, err := f.engine.SoftDelete(ctx, tm.ID, expert); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected second delete to fail with ErrNotFound, got %v", err)
	}

	if _, err := f.engine.Restore(ctx, tm.ID, expert); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected restore to be admin only, got %v", err)
	}
	res, err := f.engine.Restore(ctx, tm.ID, admin)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if res.Testimony.Status != models.StatusValidated || res.Testimony.IsDeleted() {
		t.Errorf("Expected restored VALIDATED testimony, got %+v", res.Testimony)
	}
	if score := f.legendScore(t, dragon.ID); math.Abs(score-1.2) > 1e-9 {
		t.Errorf("Expected score 1.2 after restore, got %v", score)
	}
	if _, err := f.engine.Restore(ctx, tm.ID, admin); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("Expected ErrNotDeleted on second restore, got %v", err)
	}

	if got := len(f.identity.ReputationCalls()); got != callsBefore {
		t.Errorf("Expected delete and restore to leave reputation alone, got %d new calls", got-callsBefore)
	}

	entries := f.audit.Entries()
	del, rst := entries[len(entries)-2], entries[len(entries)-1]
	if del.Action != models.ActionDelete || del.Metadata["previousStatus"] != "VALIDATED" {
		t.Errorf("Unexpected delete entry %+v", del)
	}
	if rst.Action != models.ActionRestore || rst.Metadata["status"] != "VALIDATED" {
		t.Errorf("Unexpected restore entry %+v", rst)
	}
}

func TestEngine_RateLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")
	kraken := f.creature(t, "Kraken")

	if _, err := f.engine.Create(ctx, dragon.ID, sighting, userB); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	f.clock.Advance(4*time.Minute + 59*time.Second)
	_, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
	if rl.RemainingMinutes != 1 {
		t.Errorf("Expected 1 remaining minute, got %d", rl.RemainingMinutes)
	}

	if _, err := f.engine.Create(ctx, kraken.ID, sighting, userB); err != nil {
		t.Errorf("Expected other creature to be unaffected, got %v", err)
	}
	if _, err := f.engine.Create(ctx, dragon.ID, sighting, userC); err != nil {
		t.Errorf("Expected other author to be unaffected, got %v", err)
	}

	f.clock.Advance(2 * time.Second)
	if _, err := f.engine.Create(ctx, dragon.ID, sighting, userB); err != nil {
		t.Errorf("Expected Create() after the cooldown to succeed, got %v", err)
	}
}

func TestRemainingMinutes(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{time.Second, 1},
		{time.Minute, 1},
		{time.Minute + time.Second, 2},
		{5 * time.Minute, 5},
	}
	for _, tt := range tests {
		if got := remainingMinutes(tt.wait); got != tt.want {
			t.Errorf("remainingMinutes(%v) = %d, want %d", tt.wait, got, tt.want)
		}
	}
}

func TestEngine_CreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	tests := []struct {
		name        string
		creatureID  string
		description string
	}{
		{name: "bad creature id", creatureID: "dragon", description: sighting},
		{name: "blank description", creatureID: dragon.ID, description: "   "},
		{name: "short description", creatureID: dragon.ID, description: " too short "},
		{name: "long description", creatureID: dragon.ID, description: strings.Repeat("a", MaxDescriptionLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			if _, err := f.engine.Create(ctx, tt.creatureID, tt.description, userB); !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}

	if _, err := f.engine.Create(ctx, "8f14e45f-ceea-467f-a8f6-1b4d5e3c3b11", sighting, userB); !errors.Is(err, ErrCreatureNotFound) {
		t.Errorf("Expected ErrCreatureNotFound, got %v", err)
	}
}

func TestEngine_ReputationFailureIsIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")
	f.identity.ApplyReputationDeltaFunc = func(ctx context.Context, userID string, delta int) error {
		return errors.New("identity service unavailable")
	}

	tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	before := testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(EffectAuthorReputation))

	res, err := f.engine.Validate(ctx, tm.ID, expert)
	if err != nil {
		t.Fatalf("Expected validation to commit despite identity outage, got %v", err)
	}

	stored, err := f.testimonies.GetByID(ctx, tm.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != models.StatusValidated {
		t.Errorf("Expected persisted VALIDATED, got %s", stored.Status)
	}

	author, ok := res.Effect(EffectAuthorReputation)
	if !ok || author.OK() {
		t.Errorf("Expected failed author reputation effect, got %+v", author)
	}
	if legend, _ := res.Effect(EffectLegendScore); !legend.OK() {
		t.Errorf("Expected legend score effect to succeed, got %v", legend.Err)
	}
	if audit, _ := res.Effect(EffectAuditLog); !audit.OK() {
		t.Errorf("Expected audit effect to succeed, got %v", audit.Err)
	}
	if len(res.Failed()) != 2 {
		t.Errorf("Expected author and validator effects to fail, got %+v", res.Failed())
	}

	// One attempt per delta, no retries.
	if calls := f.identity.ReputationCalls(); len(calls) != 2 {
		t.Errorf("Expected exactly 2 reputation attempts, got %d", len(calls))
	}
	if got := testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(EffectAuthorReputation)) - before; got != 1 {
		t.Errorf("Expected side effect failure counter +1, got %f", got)
	}
}

func TestEngine_LegendFailureIsIsolated(t *testing.T) {
	db := testdb.New(t)
	creatureRepo := repository.NewCreatureRepository(db)
	testimonyRepo := repository.NewTestimonyRepository(db)
	identity := &mocks.MockIdentityClient{}
	scorer := &mocks.MockScorer{
		RecomputeFunc: func(ctx context.Context, creatureID string) (float64, error) {
			return 0, errors.New("database locked")
		},
	}
	audit := mocks.NewMockModerationLogRepository()
	engine := NewEngine(testimonyRepo, creatureRepo, scorer, identity,
		auditlog.NewServiceWithInterfaces(audit, logger.Nop()), Options{}, logger.Nop())
	ctx := context.Background()

	dragon := &models.Creature{Name: "Dragon", AuthorID: admin.ID}
	if err := creatureRepo.Create(ctx, dragon); err != nil {
		t.Fatalf("Create creature error = %v", err)
	}
	tm, err := engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := engine.Reject(ctx, tm.ID, expert)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if legend, _ := res.Effect(EffectLegendScore); legend.OK() {
		t.Error("Expected legend score effect to fail")
	}
	if calls := identity.ReputationCalls(); len(calls) != 1 || calls[0].Delta != AuthorRejectedDelta {
		t.Errorf("Expected reputation to still be pushed, got %+v", calls)
	}
	if len(audit.Entries()) != 1 {
		t.Errorf("Expected audit entry to still be written")
	}
	if got := scorer.Calls(); len(got) != 1 || got[0] != dragon.ID {
		t.Errorf("Expected one recompute for %s, got %v", dragon.ID, got)
	}
}

func TestEngine_AuditFailureIsIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")
	f.audit.CreateErr = errors.New("disk full")

	tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	res, err := f.engine.Validate(ctx, tm.ID, expert)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if audit, _ := res.Effect(EffectAuditLog); audit.OK() {
		t.Error("Expected audit effect to fail")
	}
	if res.Testimony.Status != models.StatusValidated {
		t.Errorf("Expected VALIDATED, got %s", res.Testimony.Status)
	}
}

func TestEngine_ConcurrentValidateAppliesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	tm, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	moderators := []auth.Principal{
		expert,
		admin,
		{ID: "6", Username: "freya", Role: models.RoleExpert},
		{ID: "7", Username: "gunnar", Role: models.RoleExpert},
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, m := range moderators {
		wg.Add(1)
		go func(m auth.Principal) {
			defer wg.Done()
			_, err := f.engine.Validate(ctx, tm.ID, m)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, ErrNotPending):
				t.Errorf("Unexpected error %v", err)
			}
		}(m)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("Expected exactly one validation to win, got %d", succeeded)
	}

	authorCredits := 0
	for _, c := range f.identity.ReputationCalls() {
		if c.UserID == userB.ID {
			authorCredits++
		}
	}
	if authorCredits != 1 {
		t.Errorf("Expected author credited once, got %d", authorCredits)
	}
	if n := len(f.audit.Entries()); n != 1 {
		t.Errorf("Expected one audit entry, got %d", n)
	}
	if score := f.legendScore(t, dragon.ID); math.Abs(score-1.2) > 1e-9 {
		t.Errorf("Expected legend score 1.2, got %v", score)
	}
}

func TestEngine_ListByCreature(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dragon := f.creature(t, "Dragon")

	a, err := f.engine.Create(ctx, dragon.ID, sighting, userB)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.engine.Create(ctx, dragon.ID, sighting, userC); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.engine.Validate(ctx, a.ID, expert); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	all, err := f.engine.ListByCreature(ctx, dragon.ID, "")
	if err != nil || len(all) != 2 {
		t.Errorf("ListByCreature() = %d, %v; want 2", len(all), err)
	}
	validated, err := f.engine.ListByCreature(ctx, dragon.ID, models.StatusValidated)
	if err != nil || len(validated) != 1 || validated[0].ID != a.ID {
		t.Errorf("ListByCreature(VALIDATED) = %v, %v", validated, err)
	}

	var verr *ValidationError
	if _, err := f.engine.ListByCreature(ctx, dragon.ID, "MAYBE"); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError for unknown status, got %v", err)
	}

	mine, err := f.engine.ListByAuthor(ctx, userB.ID)
	if err != nil || len(mine) != 1 {
		t.Errorf("ListByAuthor() = %d, %v; want 1", len(mine), err)
	}
}
