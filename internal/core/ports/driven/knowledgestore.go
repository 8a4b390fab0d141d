package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// KnowledgeStore persists chunk records.
// Implementations enforce (contentType, contentId, chunkHash) uniqueness at the
// storage layer and make every single-chunk write atomic.
type KnowledgeStore interface {
	// UpsertChunk inserts or updates a chunk keyed by (contentType, contentId, chunkHash).
	// On insert an ID is assigned; on update ID and CreatedAt are preserved.
	// Returns the stored row.
	UpsertChunk(ctx context.Context, chunk domain.Chunk) (domain.Chunk, error)

	// FindByContentKey returns every chunk of a document, active or not,
	// ordered by chunk index.
	FindByContentKey(ctx context.Context, contentType domain.ContentType, contentID string) ([]domain.Chunk, error)

	// FindByHash returns the chunk with the given identity.
	// Returns domain.ErrNotFound if absent.
	FindByHash(ctx context.Context, contentType domain.ContentType, contentID, chunkHash string) (*domain.Chunk, error)

	// FindEmbedding returns a stored embedding for text with the given hash,
	// computed with the given model, from any document.
	// Returns domain.ErrNotFound if none is stored.
	FindEmbedding(ctx context.Context, chunkHash, model string) ([]float32, error)

	// DeactivateChunks marks inactive every active chunk of the document whose
	// hash is not in keepHashes. Returns the rows that were deactivated.
	DeactivateChunks(ctx context.Context, contentType domain.ContentType, contentID string, keepHashes []string) ([]domain.Chunk, error)

	// DeleteAllForContent hard-deletes every chunk of the document.
	// Returns the number of rows removed.
	DeleteAllForContent(ctx context.Context, contentType domain.ContentType, contentID string) (int, error)

	// QueryActive returns active chunks matching the filter.
	QueryActive(ctx context.Context, filter ChunkFilter) ([]domain.Chunk, error)

	// Stats summarises the store contents.
	Stats(ctx context.Context) (domain.StoreStats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChunkFilter narrows QueryActive. Zero fields match everything.
type ChunkFilter struct {
	// IDs restricts results to the given chunk IDs.
	IDs []string

	ContentTypes []domain.ContentType
	Language     string

	// UpdatedSince keeps chunks updated at or after the given time.
	UpdatedSince time.Time

	// Limit caps the result size. Zero means no limit.
	Limit int
}
