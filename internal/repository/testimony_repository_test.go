package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimd54/lorekeeper/internal/models"
)

func TestTestimonyRepository_CreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)

	testimony := createTestTestimony(t, repo, "c-1", "7", time.Now().UTC())

	if testimony.ID == "" {
		t.Error("Expected generated ID")
	}
	if testimony.Status != models.StatusPending {
		t.Errorf("Expected PENDING, got %s", testimony.Status)
	}
}

func TestTestimonyRepository_FindRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := createTestTestimony(t, repo, "c-1", "7", now.Add(-10*time.Minute))
	recent := createTestTestimony(t, repo, "c-1", "7", now.Add(-2*time.Minute))
	createTestTestimony(t, repo, "c-2", "7", now.Add(-1*time.Minute))
	createTestTestimony(t, repo, "c-1", "8", now.Add(-1*time.Minute))

	got, err := repo.FindRecent(ctx, "7", "c-1", now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindRecent() error = %v", err)
	}
	if got == nil || got.ID != recent.ID {
		t.Fatalf("Expected recent testimony %s, got %+v", recent.ID, got)
	}

	// Soft-deleted testimonies do not count towards the window.
	if err := repo.SoftDelete(ctx, recent.ID, "1", now); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	got, err = repo.FindRecent(ctx, "7", "c-1", now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindRecent() error = %v", err)
	}
	if got != nil {
		t.Errorf("Expected no recent testimony, got %s (old is %s)", got.ID, old.ID)
	}
}

func TestTestimonyRepository_TransitionStatusIsGuarded(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	testimony := createTestTestimony(t, repo, "c-1", "7", now)

	if err := repo.TransitionStatus(ctx, testimony.ID, models.StatusPending, models.StatusValidated, "9", now); err != nil {
		t.Fatalf("TransitionStatus() error = %v", err)
	}

	err := repo.TransitionStatus(ctx, testimony.ID, models.StatusPending, models.StatusRejected, "9", now)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on second transition, got %v", err)
	}

	got, err := repo.GetByID(ctx, testimony.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.StatusValidated {
		t.Errorf("Expected VALIDATED, got %s", got.Status)
	}
	if got.ValidatedBy == nil || *got.ValidatedBy != "9" || got.ValidatedAt == nil {
		t.Errorf("Expected validator 9 and timestamp, got %v %v", got.ValidatedBy, got.ValidatedAt)
	}
}

func TestTestimonyRepository_ConcurrentTransitionsAtMostOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	testimony := createTestTestimony(t, repo, "c-1", "7", now)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.TransitionStatus(ctx, testimony.ID, models.StatusPending, models.StatusValidated, "9", now)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("Expected exactly one successful transition, got %d", successes)
	}
}

func TestTestimonyRepository_TransitionOnDeletedFails(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	testimony := createTestTestimony(t, repo, "c-1", "7", now)
	if err := repo.SoftDelete(ctx, testimony.ID, "1", now); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	err := repo.TransitionStatus(ctx, testimony.ID, models.StatusPending, models.StatusValidated, "9", now)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestTestimonyRepository_SoftDeleteAndRestore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	testimony := createTestTestimony(t, repo, "c-1", "7", now)

	if err := repo.Restore(ctx, testimony.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict restoring live testimony, got %v", err)
	}

	if err := repo.SoftDelete(ctx, testimony.ID, "1", now); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if err := repo.SoftDelete(ctx, testimony.ID, "1", now); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict deleting twice, got %v", err)
	}

	if _, err := repo.GetByID(ctx, testimony.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted testimony hidden from GetByID, got %v", err)
	}
	deleted, err := repo.GetByIDIncludingDeleted(ctx, testimony.ID)
	if err != nil {
		t.Fatalf("GetByIDIncludingDeleted() error = %v", err)
	}
	if !deleted.IsDeleted() || deleted.DeletedBy == nil || *deleted.DeletedBy != "1" {
		t.Errorf("Expected deletion marker by 1, got %+v", deleted)
	}

	if err := repo.Restore(ctx, testimony.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	restored, err := repo.GetByID(ctx, testimony.ID)
	if err != nil {
		t.Fatalf("GetByID() after restore error = %v", err)
	}
	if restored.IsDeleted() || restored.DeletedBy != nil {
		t.Errorf("Expected cleared deletion marker, got %+v", restored)
	}
	if restored.Status != models.StatusPending {
		t.Errorf("Expected status preserved, got %s", restored.Status)
	}
}

func TestTestimonyRepository_CountsAndListsExcludeDeleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTestimonyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []string
	for i := 0; i < 3; i++ {
		tm := createTestTestimony(t, repo, "c-1", "7", now.Add(time.Duration(-i)*time.Hour))
		if err := repo.TransitionStatus(ctx, tm.ID, models.StatusPending, models.StatusValidated, "9", now); err != nil {
			t.Fatalf("TransitionStatus() error = %v", err)
		}
		ids = append(ids, tm.ID)
	}
	createTestTestimony(t, repo, "c-1", "8", now)

	if err := repo.SoftDelete(ctx, ids[0], "1", now); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	count, err := repo.CountByCreatureAndStatus(ctx, "c-1", models.StatusValidated)
	if err != nil {
		t.Fatalf("CountByCreatureAndStatus() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 validated, got %d", count)
	}

	all, err := repo.ListByCreature(ctx, "c-1", "")
	if err != nil {
		t.Fatalf("ListByCreature() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 live testimonies, got %d", len(all))
	}

	pending, err := repo.ListByCreature(ctx, "c-1", models.StatusPending)
	if err != nil {
		t.Fatalf("ListByCreature(PENDING) error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending, got %d", len(pending))
	}

	mine, err := repo.ListByAuthor(ctx, "7")
	if err != nil {
		t.Fatalf("ListByAuthor() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("Expected 2 testimonies by author 7, got %d", len(mine))
	}
}
