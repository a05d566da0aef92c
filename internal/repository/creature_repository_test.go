package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aimd54/lorekeeper/internal/models"
)

func TestCreatureRepository_CreateAssignsDefaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCreatureRepository(db)

	creature := createTestCreature(t, repo, "Fenrir", "1")

	if creature.ID == "" {
		t.Error("Expected generated ID")
	}
	if creature.LegendScore != models.BaseLegendScore {
		t.Errorf("Expected legend score 1, got %f", creature.LegendScore)
	}
	if creature.NameKey != "fenrir" {
		t.Errorf("Expected name key fenrir, got %q", creature.NameKey)
	}
}

func TestCreatureRepository_NameIsCaseInsensitiveUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCreatureRepository(db)
	ctx := context.Background()

	fenrir := createTestCreature(t, repo, "Fenrir", "1")

	exists, err := repo.ExistsByName(ctx, "FENRIR", "")
	if err != nil || !exists {
		t.Errorf("ExistsByName(FENRIR) = %v, %v; want true", exists, err)
	}

	exists, err = repo.ExistsByName(ctx, "fenrir", fenrir.ID)
	if err != nil || exists {
		t.Errorf("ExistsByName excluding self = %v, %v; want false", exists, err)
	}

	err = repo.Create(ctx, &models.Creature{Name: "fEnRiR", AuthorID: "2"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestCreatureRepository_ListSortSearchPaginate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCreatureRepository(db)
	ctx := context.Background()

	names := []string{"Basilisk", "Hydra", "Phoenix", "Kraken", "Hydra of Lerna"}
	for i, name := range names {
		c := createTestCreature(t, repo, name, "1")
		if err := repo.UpdateLegendScore(ctx, c.ID, 1+float64(i)/5); err != nil {
			t.Fatalf("UpdateLegendScore() error = %v", err)
		}
	}
	createTestCreature(t, repo, "Tarasque", "2")

	t.Run("sort by legend score descending", func(t *testing.T) {
		got, total, err := repo.List(ctx, CreatureQuery{Page: 1, Limit: 2, Sort: "legendScore"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if total != 6 {
			t.Errorf("Expected total 6, got %d", total)
		}
		if len(got) != 2 || got[0].Name != "Hydra of Lerna" || got[1].Name != "Kraken" {
			t.Errorf("Unexpected order: %+v", got)
		}
	})

	t.Run("sort by name", func(t *testing.T) {
		got, _, err := repo.List(ctx, CreatureQuery{Page: 1, Limit: 10, Sort: "name"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got[0].Name != "Basilisk" || got[len(got)-1].Name != "Tarasque" {
			t.Errorf("Unexpected name order: first=%s last=%s", got[0].Name, got[len(got)-1].Name)
		}
	})

	t.Run("search is case-insensitive", func(t *testing.T) {
		got, total, err := repo.List(ctx, CreatureQuery{Search: "HYDRA"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if total != 2 || len(got) != 2 {
			t.Errorf("Expected 2 hydras, got total=%d len=%d", total, len(got))
		}
	})

	t.Run("author filter", func(t *testing.T) {
		_, total, err := repo.List(ctx, CreatureQuery{AuthorID: "2"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if total != 1 {
			t.Errorf("Expected 1 creature for author 2, got %d", total)
		}
	})

	t.Run("second page", func(t *testing.T) {
		got, _, err := repo.List(ctx, CreatureQuery{Page: 2, Limit: 4, Sort: "name"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Expected 2 creatures on page 2, got %d", len(got))
		}
	})
}

func TestCreatureRepository_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCreatureRepository(db)
	ctx := context.Background()

	creature := createTestCreature(t, repo, "Fenrir", "1")
	creature.Name = "Fenrisúlfr"
	creature.Origin = "Scandinavie"
	if err := repo.Update(ctx, creature); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, creature.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Fenrisúlfr" || got.NameKey != "fenrisúlfr" || got.Origin != "Scandinavie" {
		t.Errorf("Update not persisted: %+v", got)
	}

	if err := repo.Delete(ctx, creature.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, creature.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.UpdateLegendScore(ctx, creature.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound scoring deleted creature, got %v", err)
	}
}

func TestCreatureRepository_ListScores(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCreatureRepository(db)
	ctx := context.Background()

	a := createTestCreature(t, repo, "Alpha", "1")
	b := createTestCreature(t, repo, "Beta", "1")
	if err := repo.UpdateLegendScore(ctx, b.ID, 1.6); err != nil {
		t.Fatalf("UpdateLegendScore() error = %v", err)
	}

	scores, err := repo.ListScores(ctx)
	if err != nil {
		t.Fatalf("ListScores() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("Expected 2 scores, got %d", len(scores))
	}
	got := map[string]float64{scores[0].ID: scores[0].LegendScore, scores[1].ID: scores[1].LegendScore}
	if got[a.ID] != 1 || got[b.ID] != 1.6 {
		t.Errorf("Unexpected scores %v", got)
	}
}
