package driven

import "context"

// VectorIndex provides similarity search over active chunk embeddings.
// Deactivated chunks are deleted from the index, so every entry is active.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for the given chunk ID.
	Upsert(ctx context.Context, chunkID string, embedding []float32, meta VectorMetadata) error

	// Delete removes a vector from the index. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, chunkID string) error

	// Search finds the k nearest neighbours to the query vector that match the filter.
	// Hits are ordered by descending similarity.
	Search(ctx context.Context, query []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// Len returns the number of live vectors.
	Len() int

	// Close releases resources.
	Close() error
}

// VectorMetadata is stored alongside each vector for filtering.
type VectorMetadata struct {
	ContentType string
	ContentID   string
	Language    string

	// Scope is an opaque tenant token.
	Scope string
}

// VectorFilter narrows Search. Empty fields match everything.
type VectorFilter struct {
	Language string
	Scope    string
}

// Matches reports whether metadata passes the filter.
func (f VectorFilter) Matches(meta VectorMetadata) bool {
	if f.Language != "" && meta.Language != f.Language {
		return false
	}
	if f.Scope != "" && meta.Scope != f.Scope {
		return false
	}
	return true
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
