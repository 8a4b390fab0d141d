package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

type vectorEntry struct {
	vec  []float32
	meta driven.VectorMetadata
}

// VectorIndex is an exact, brute-force implementation of driven.VectorIndex.
// Suitable for tests and small catalogs.
type VectorIndex struct {
	mu      sync.RWMutex
	entries map[string]vectorEntry
	dim     int
}

// NewVectorIndex creates an empty in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{entries: make(map[string]vectorEntry)}
}

// Upsert inserts or replaces the vector for the given chunk ID.
func (v *VectorIndex) Upsert(_ context.Context, chunkID string, embedding []float32, meta driven.VectorMetadata) error {
	if len(embedding) == 0 {
		return fmt.Errorf("vector index: empty embedding for %s", chunkID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.entries) == 0 {
		v.dim = len(embedding)
	}
	if len(embedding) != v.dim {
		return fmt.Errorf("vector index: dimension mismatch: expected %d, got %d", v.dim, len(embedding))
	}
	v.entries[chunkID] = vectorEntry{vec: append([]float32(nil), embedding...), meta: meta}
	return nil
}

// Delete removes a vector. Unknown IDs are ignored.
func (v *VectorIndex) Delete(_ context.Context, chunkID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, chunkID)
	return nil
}

// Search scores every vector matching the filter and returns the best k.
func (v *VectorIndex) Search(_ context.Context, query []float32, k int, filter driven.VectorFilter) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.entries) > 0 && len(query) != v.dim {
		return nil, fmt.Errorf("vector index: dimension mismatch: expected %d, got %d", v.dim, len(query))
	}

	hits := make([]driven.VectorHit, 0, len(v.entries))
	for id, e := range v.entries {
		if !filter.Matches(e.meta) {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Similarity: cosine(query, e.vec)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}

// cosine returns the cosine similarity of a and b clamped to [0, 1].
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, s))
}
