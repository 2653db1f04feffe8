// Package history keeps the summaries of past runs.
package history

import (
	"context"
	"errors"

	"github.com/godhahn/data-project/internal/extract"
)

var (
	// ErrNotFound is returned when no run has been recorded yet.
	ErrNotFound = errors.New("no runs recorded")
)

// Repository stores run summaries.
type Repository interface {
	Save(ctx context.Context, sum extract.Summary) error
	// Latest returns the most recently started run.
	Latest(ctx context.Context) (extract.Summary, error)
	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]extract.Summary, error)
}
