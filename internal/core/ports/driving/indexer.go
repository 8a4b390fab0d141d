package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// Indexer orchestrates turning content records into stored, embedded chunks.
type Indexer interface {
	// IndexSingleItem indexes one record. A malformed record fails with a
	// domain.ValidationError naming the missing field.
	IndexSingleItem(ctx context.Context, record domain.ContentRecord, forceReindex bool) (domain.ItemResult, error)

	// IndexContentType indexes every record of one content type.
	// Per-item failures are recorded in the result, never returned.
	// Fails with domain.ErrIndexingInProgress if the type is already being indexed.
	IndexContentType(ctx context.Context, contentType domain.ContentType, forceReindex bool) (domain.ContentTypeResult, error)

	// IndexAllContent indexes every requested content type in parallel lanes.
	// A failing type never aborts the others. An error is returned only when the
	// pass cannot start at all.
	IndexAllContent(ctx context.Context, opts domain.IndexAllOptions) (*domain.IndexAllResult, error)

	// RemoveContent hard-deletes every chunk of a document.
	// Returns true if anything was deleted.
	RemoveContent(ctx context.Context, contentID string, contentType domain.ContentType) (bool, error)

	// HandleChange applies a change event from a watching source.
	HandleChange(ctx context.Context, change domain.ContentChange) error

	// Statistics returns cumulative counters since process start.
	Statistics(ctx context.Context) domain.Statistics

	// ProcessingStatus returns snapshots of in-flight runs.
	ProcessingStatus() []domain.IndexingRun

	// IsProcessing reports whether any of the given types is being indexed.
	// With no arguments it reports whether any run is active.
	IsProcessing(contentTypes ...domain.ContentType) bool

	// SetBatchSize changes the batch size. Fails with domain.ConfigurationError
	// outside [1, 100].
	SetBatchSize(n int) error

	// SetCacheTTL changes the embedding cache lifetime. Fails with
	// domain.ConfigurationError outside [60s, 7d].
	SetCacheTTL(ttl time.Duration) error
}
