package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// --- Mock implementations shared by indexer and retriever tests ---

// mockEmbedder produces deterministic vectors and counts calls.
type mockEmbedder struct {
	mu        sync.Mutex
	model     string
	dims      int
	calls     int
	failNext  int   // fail this many calls with a transient error
	permanent error // fail every call with this error
	vectors   map[string][]float32
	ttl       time.Duration
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{model: "test-embed", dims: 8, vectors: make(map[string][]float32)}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.permanent != nil {
		return nil, m.permanent
	}
	if m.failNext > 0 {
		m.failNext--
		return nil, &domain.TransientServiceError{Service: "embedding", Err: errors.New("503")}
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return hashVector(text, m.dims), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) ModelName() string { return m.model }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error { return nil }

func (m *mockEmbedder) SetTTL(ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
	return nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// hashVector spreads a text fingerprint over dims positive components.
func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range v {
		v[i] = float32((seed>>(uint(i)*7))&0x7f) + 1
	}
	return v
}

// mockSource serves a fixed record list.
type mockSource struct {
	ct      domain.ContentType
	records []domain.ContentRecord
	listErr error
	delay   time.Duration
}

func (m *mockSource) Type() domain.ContentType { return m.ct }

func (m *mockSource) ListAll(ctx context.Context) (<-chan domain.ContentRecord, <-chan error) {
	records := make(chan domain.ContentRecord)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(records)
		if m.listErr != nil {
			errs <- m.listErr
			return
		}
		for _, r := range m.records {
			if m.delay > 0 {
				time.Sleep(m.delay)
			}
			select {
			case records <- r:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return records, errs
}

func (m *mockSource) GetOne(_ context.Context, id string) (*domain.ContentRecord, error) {
	for _, r := range m.records {
		if r.ContentID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSource) Count(_ context.Context) (int, error) { return len(m.records), nil }

func (m *mockSource) Close() error { return nil }

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	driven.KnowledgeStore
	pingErr   error
	upsertErr func(domain.Chunk) error
}

func (f *failingStore) Ping(ctx context.Context) error {
	if f.pingErr != nil {
		return f.pingErr
	}
	return f.KnowledgeStore.Ping(ctx)
}

func (f *failingStore) UpsertChunk(ctx context.Context, c domain.Chunk) (domain.Chunk, error) {
	if f.upsertErr != nil {
		if err := f.upsertErr(c); err != nil {
			return domain.Chunk{}, err
		}
	}
	return f.KnowledgeStore.UpsertChunk(ctx, c)
}
