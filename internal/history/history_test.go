package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/godhahn/data-project/internal/extract"
)

func run(id string, started time.Time) extract.Summary {
	return extract.Summary{
		RunID:      id,
		Status:     extract.StatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
}

func TestMemoryRepositoryEmpty(t *testing.T) {
	repo := NewMemoryRepository(10, 0)

	if _, err := repo.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	runs, err := repo.List(context.Background(), 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected no runs, got %v (%v)", runs, err)
	}
}

func TestMemoryRepositoryOrderAndLimit(t *testing.T) {
	repo := NewMemoryRepository(0, 0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.Save(context.Background(), run(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	latest, err := repo.Latest(context.Background())
	if err != nil || latest.RunID != "run-4" {
		t.Fatalf("expected run-4, got %+v (%v)", latest, err)
	}

	runs, _ := repo.List(context.Background(), 2)
	if len(runs) != 2 || runs[0].RunID != "run-4" || runs[1].RunID != "run-3" {
		t.Fatalf("unexpected list %+v", runs)
	}

	all, _ := repo.List(context.Background(), 0)
	if len(all) != 5 {
		t.Fatalf("expected all 5 runs, got %d", len(all))
	}
}

func TestMemoryRepositoryRetentionByCount(t *testing.T) {
	repo := NewMemoryRepository(3, 0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = repo.Save(context.Background(), run(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour)))
	}

	runs, _ := repo.List(context.Background(), 0)
	if len(runs) != 3 || runs[2].RunID != "run-2" {
		t.Fatalf("expected runs 4..2, got %+v", runs)
	}
}

func TestMemoryRepositoryRetentionByAge(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository(0, 48*time.Hour)
	repo.now = func() time.Time { return now }

	_ = repo.Save(context.Background(), run("old", now.Add(-72*time.Hour)))
	_ = repo.Save(context.Background(), run("recent", now.Add(-24*time.Hour)))
	_ = repo.Save(context.Background(), run("new", now))

	runs, _ := repo.List(context.Background(), 0)
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "recent" {
		t.Fatalf("expected new, recent; got %+v", runs)
	}
}

func TestMemoryRepositoryKeepsLatestEvenWhenOld(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository(0, time.Hour)
	repo.now = func() time.Time { return now }

	_ = repo.Save(context.Background(), run("stale", now.Add(-72*time.Hour)))

	if latest, err := repo.Latest(context.Background()); err != nil || latest.RunID != "stale" {
		t.Fatalf("expected stale run kept, got %+v (%v)", latest, err)
	}
}

func TestMemoryRepositoryCancelledSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewMemoryRepository(0, 0).Save(ctx, run("x", time.Now())); err == nil {
		t.Fatal("expected an error")
	}
}
