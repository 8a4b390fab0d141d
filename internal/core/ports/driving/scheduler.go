package driving

import (
	"context"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// Scheduler runs full indexing passes on a fixed interval.
type Scheduler interface {
	// Start runs due passes until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for an in-flight pass.
	Stop() error

	// History returns up to limit recent full-index results, newest first.
	History(ctx context.Context, limit int) ([]domain.TaskResult, error)
}
