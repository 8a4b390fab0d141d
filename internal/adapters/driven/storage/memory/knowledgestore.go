package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/logger"
)

// Ensure KnowledgeStore implements the interface.
var _ driven.KnowledgeStore = (*KnowledgeStore)(nil)

// chunkKey is the uniqueness key of a chunk.
type chunkKey struct {
	contentType domain.ContentType
	contentID   string
	chunkHash   string
}

func keyOf(c *domain.Chunk) chunkKey {
	return chunkKey{contentType: c.ContentType, contentID: c.ContentID, chunkHash: c.ChunkHash}
}

// KnowledgeStore is an in-memory implementation of driven.KnowledgeStore.
type KnowledgeStore struct {
	mu     sync.RWMutex
	chunks map[chunkKey]domain.Chunk
	byID   map[string]chunkKey
	now    func() time.Time
}

// NewKnowledgeStore creates a new in-memory knowledge store.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{
		chunks: make(map[chunkKey]domain.Chunk),
		byID:   make(map[string]chunkKey),
		now:    time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *KnowledgeStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// UpsertChunk inserts or updates a chunk keyed by (content type, content id, hash).
func (s *KnowledgeStore) UpsertChunk(_ context.Context, chunk domain.Chunk) (domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(&chunk)
	now := s.now().UTC()

	existing, exists := s.chunks[key]
	switch {
	case exists && chunk.ID != "" && chunk.ID != existing.ID:
		return domain.Chunk{}, consistencyError(chunk, "row exists with a different id")
	case !exists && chunk.ID != "":
		if _, taken := s.byID[chunk.ID]; taken {
			return domain.Chunk{}, consistencyError(chunk, "id already used by another row")
		}
	}

	if exists {
		chunk.ID = existing.ID
		chunk.CreatedAt = existing.CreatedAt
	} else {
		if chunk.ID == "" {
			chunk.ID = uuid.New().String()
		}
		chunk.CreatedAt = now
	}
	chunk.UpdatedAt = now
	chunk = cloneChunk(chunk)

	s.chunks[key] = chunk
	s.byID[chunk.ID] = key
	return cloneChunk(chunk), nil
}

func consistencyError(chunk domain.Chunk, reason string) error {
	err := &domain.ConsistencyError{Key: chunk.Key(), ChunkHash: chunk.ChunkHash, Reason: reason}
	logger.Error("memory: rejected chunk write: %v", err)
	return err
}

// FindByContentKey returns every chunk of a document ordered by chunk index.
func (s *KnowledgeStore) FindByContentKey(_ context.Context, contentType domain.ContentType, contentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Chunk
	for k, c := range s.chunks {
		if k.contentType == contentType && k.contentID == contentID {
			result = append(result, cloneChunk(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return result, nil
}

// FindByHash returns one chunk by identity.
func (s *KnowledgeStore) FindByHash(_ context.Context, contentType domain.ContentType, contentID, chunkHash string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[chunkKey{contentType: contentType, contentID: contentID, chunkHash: chunkHash}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c = cloneChunk(c)
	return &c, nil
}

// FindEmbedding returns any stored embedding for the hash and model.
func (s *KnowledgeStore) FindEmbedding(_ context.Context, chunkHash, model string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, c := range s.chunks {
		if k.chunkHash == chunkHash && c.EmbeddingModel == model && len(c.Embedding) > 0 {
			return append([]float32(nil), c.Embedding...), nil
		}
	}
	return nil, domain.ErrNotFound
}

// DeactivateChunks marks inactive every active chunk of the document whose
// hash is not in keepHashes, and returns those chunks.
func (s *KnowledgeStore) DeactivateChunks(_ context.Context, contentType domain.ContentType, contentID string, keepHashes []string) ([]domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(keepHashes))
	for _, h := range keepHashes {
		keep[h] = true
	}

	now := s.now().UTC()
	var stale []domain.Chunk
	for k, c := range s.chunks {
		if k.contentType != contentType || k.contentID != contentID || !c.IsActive || keep[k.chunkHash] {
			continue
		}
		c.IsActive = false
		c.UpdatedAt = now
		s.chunks[k] = c
		stale = append(stale, cloneChunk(c))
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ChunkIndex < stale[j].ChunkIndex })
	return stale, nil
}

// DeleteAllForContent hard-deletes every chunk of the document.
func (s *KnowledgeStore) DeleteAllForContent(_ context.Context, contentType domain.ContentType, contentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, c := range s.chunks {
		if k.contentType == contentType && k.contentID == contentID {
			delete(s.chunks, k)
			delete(s.byID, c.ID)
			n++
		}
	}
	return n, nil
}

// QueryActive returns active chunks matching the filter.
func (s *KnowledgeStore) QueryActive(_ context.Context, filter driven.ChunkFilter) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.IDs != nil && len(filter.IDs) == 0 {
		return nil, nil
	}

	var ids map[string]bool
	if filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	var types map[domain.ContentType]bool
	if len(filter.ContentTypes) > 0 {
		types = make(map[domain.ContentType]bool, len(filter.ContentTypes))
		for _, ct := range filter.ContentTypes {
			types[ct] = true
		}
	}

	var result []domain.Chunk
	for _, c := range s.chunks {
		switch {
		case !c.IsActive:
			continue
		case ids != nil && !ids[c.ID]:
			continue
		case types != nil && !types[c.ContentType]:
			continue
		case filter.Language != "" && c.Language != filter.Language:
			continue
		case !filter.UpdatedSince.IsZero() && c.UpdatedAt.Before(filter.UpdatedSince):
			continue
		}
		result = append(result, cloneChunk(c))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ContentType != b.ContentType {
			return a.ContentType < b.ContentType
		}
		if a.ContentID != b.ContentID {
			return a.ContentID < b.ContentID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Stats summarises the store contents.
func (s *KnowledgeStore) Stats(_ context.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.StoreStats{PerType: make(map[domain.ContentType]int)}
	docs := make(map[domain.ContentKey]bool)
	for _, c := range s.chunks {
		stats.TotalChunks++
		if !c.IsActive {
			stats.InactiveChunks++
			continue
		}
		stats.ActiveChunks++
		stats.PerType[c.ContentType]++
		docs[c.Key()] = true
	}
	stats.Documents = len(docs)
	return stats, nil
}

// Ping always succeeds.
func (s *KnowledgeStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *KnowledgeStore) Close() error {
	return nil
}

// cloneChunk copies the slices and maps a caller could mutate.
func cloneChunk(c domain.Chunk) domain.Chunk {
	if c.Embedding != nil {
		c.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.Metadata != nil {
		md := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	return c
}
