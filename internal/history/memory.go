package history

import (
	"context"
	"sync"
	"time"

	"github.com/godhahn/data-project/internal/extract"
)

// MemoryRepository is a concurrency-safe in-memory Repository.
type MemoryRepository struct {
	mu sync.RWMutex

	// oldest first
	runs []extract.Summary

	// retention configuration
	maxRuns int           // max number of runs kept (0 = unlimited)
	maxAge  time.Duration // max age of runs (0 = unlimited)

	now func() time.Time
}

// NewMemoryRepository creates a MemoryRepository with optional limits.
// If maxRuns is <= 0, it is treated as unlimited.
func NewMemoryRepository(maxRuns int, maxAge time.Duration) *MemoryRepository {
	return &MemoryRepository{
		maxRuns: maxRuns,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Save appends sum and enforces retention.
func (r *MemoryRepository) Save(ctx context.Context, sum extract.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, sum)

	// Enforce retention by count.
	if r.maxRuns > 0 && len(r.runs) > r.maxRuns {
		over := len(r.runs) - r.maxRuns
		r.runs = append([]extract.Summary(nil), r.runs[over:]...)
	}

	// Enforce retention by age. The run just saved is always kept.
	if r.maxAge > 0 {
		cutoff := r.now().Add(-r.maxAge)
		i := 0
		for ; i < len(r.runs)-1; i++ {
			if !r.runs[i].StartedAt.Before(cutoff) {
				break
			}
		}
		r.runs = r.runs[i:]
	}
	return nil
}

// Latest returns the most recently saved run.
func (r *MemoryRepository) Latest(ctx context.Context) (extract.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.runs) == 0 {
		return extract.Summary{}, ErrNotFound
	}
	return r.runs[len(r.runs)-1], nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all runs.
func (r *MemoryRepository) List(ctx context.Context, limit int) ([]extract.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.runs)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]extract.Summary, 0, n)
	for i := len(r.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}
