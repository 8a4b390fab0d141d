package driven

import (
	"context"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// ContentSource produces normalised records for one content type.
// Sources paginate internally; ListAll is restartable from the beginning.
type ContentSource interface {
	// Type returns the content type this source serves.
	Type() domain.ContentType

	// ListAll streams every record lazily.
	// The record channel is closed when the listing ends. At most one error
	// is sent on the error channel, which is closed afterwards.
	ListAll(ctx context.Context) (<-chan domain.ContentRecord, <-chan error)

	// GetOne fetches a single record. Returns domain.ErrNotFound if absent.
	GetOne(ctx context.Context, contentID string) (*domain.ContentRecord, error)

	// Close releases resources.
	Close() error
}

// CountingSource is implemented by sources that know their size up front.
// It feeds IndexingRun progress.
type CountingSource interface {
	Count(ctx context.Context) (int, error)
}

// WatchingSource is implemented by sources that push change events.
type WatchingSource interface {
	// Watch streams changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan domain.ContentChange, error)
}
