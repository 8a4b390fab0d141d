package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/shopground/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/shopground/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

var retrievalNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type retrieverFixture struct {
	retriever *Retriever
	store     *memory.KnowledgeStore
	vectors   driven.VectorIndex
	embedder  *mockEmbedder
}

func newRetrieverFixture(t *testing.T, opts ...RetrieverOption) *retrieverFixture {
	t.Helper()
	return newRetrieverFixtureOn(t, memory.NewVectorIndex(), opts...)
}

// newRetrieverFixtureOn builds the fixture over the given vector index.
func newRetrieverFixtureOn(t *testing.T, vectors driven.VectorIndex, opts ...RetrieverOption) *retrieverFixture {
	t.Helper()
	f := &retrieverFixture{
		store:    memory.NewKnowledgeStore(),
		vectors:  vectors,
		embedder: newMockEmbedder(),
	}
	f.store.SetClock(func() time.Time { return retrievalNow })
	f.embedder.vectors["how do returns work"] = []float32{1, 0}

	opts = append([]RetrieverOption{WithRetrieverClock(func() time.Time { return retrievalNow })}, opts...)
	f.retriever = NewRetriever(f.store, f.vectors, f.embedder, opts...)
	return f
}

// seed stores an active chunk and its vector.
func (f *retrieverFixture) seed(t *testing.T, ct domain.ContentType, id, text, lang string, vec []float32) domain.Chunk {
	t.Helper()
	ctx := context.Background()
	stored, err := f.store.UpsertChunk(ctx, domain.Chunk{
		ContentType:    ct,
		ContentID:      id,
		TotalChunks:    1,
		Text:           text,
		ChunkHash:      "h-" + id,
		Language:       lang,
		Metadata:       map[string]any{"title": "Title " + id, "url": "https://shop.example/" + id},
		Embedding:      vec,
		EmbeddingModel: f.embedder.model,
		IsActive:       true,
	})
	require.NoError(t, err)
	require.NoError(t, f.vectors.Upsert(ctx, stored.ID, vec, driven.VectorMetadata{
		ContentType: string(ct), ContentID: id, Language: lang,
	}))
	return stored
}

func ids(w *domain.ContextWindow) []string {
	out := make([]string, len(w.Excerpts))
	for i, e := range w.Excerpts {
		out[i] = e.ContentID
	}
	return out
}

func TestRetriever_EmptyQuery(t *testing.T) {
	f := newRetrieverFixture(t)

	w, err := f.retriever.Retrieve(context.Background(), "   ", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.False(t, w.Grounded())
	assert.Equal(t, domain.DefaultMaxTokens, w.MaxTokens)
	assert.Equal(t, 0, f.embedder.callCount())
}

func TestRetriever_NoCandidateAboveThreshold(t *testing.T) {
	f := newRetrieverFixture(t)
	f.seed(t, "product", "mug", "A ceramic mug.", "en", []float32{0, 1})
	f.seed(t, "page", "about", "We roast coffee.", "en", []float32{0.2, 1})

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{Language: "en"})
	require.NoError(t, err)
	assert.False(t, w.Grounded())
	assert.Empty(t, w.Excerpts)
	assert.Equal(t, 2, w.Candidates)
	assert.Equal(t, 0, w.TotalTokens)
}

func TestRetriever_RanksByTypePriorityAndPreference(t *testing.T) {
	f := newRetrieverFixture(t)
	f.seed(t, "policy", "returns", "Returns are accepted within 30 days.", "en", []float32{0.8, 0.6})
	f.seed(t, "product", "kettle", "Kettle returns need the original box.", "en", []float32{0.85, 0.527})
	ctx := context.Background()

	w, err := f.retriever.Retrieve(ctx, "how do returns work", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"returns", "kettle"}, ids(w))

	first := w.Excerpts[0]
	assert.Equal(t, "Title returns", first.Title)
	assert.Equal(t, "https://shop.example/returns", first.URL)
	assert.InDelta(t, 0.8, first.Similarity, 0.001)
	assert.InDelta(t, 0.8*0.75+1.0*0.15+0.10, first.Score, 0.001)

	w, err = f.retriever.Retrieve(ctx, "how do returns work", domain.RetrievalContext{ContentTypePreference: "product"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kettle", "returns"}, ids(w))
}

func TestRetriever_FreshnessBreaksNearTies(t *testing.T) {
	f := newRetrieverFixture(t)
	f.store.SetClock(func() time.Time { return retrievalNow.Add(-90 * 24 * time.Hour) })
	f.seed(t, "faq", "old", "Refunds take five days.", "en", []float32{1, 0.1})
	f.store.SetClock(func() time.Time { return retrievalNow.Add(-24 * time.Hour) })
	f.seed(t, "faq", "new", "Refunds take three days.", "en", []float32{1, 0.1})

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(w))
	assert.Greater(t, w.Excerpts[0].Score, w.Excerpts[1].Score)
}

func TestRetriever_TokenBudget(t *testing.T) {
	f := newRetrieverFixture(t)
	long := strings.Repeat("Long policy text. ", 10)
	f.seed(t, "policy", "long", long, "en", []float32{1, 0})
	f.seed(t, "faq", "short", "Yes, within 30 days.", "en", []float32{0.9, 0.3})
	f.seed(t, "page", "tiny", "See returns.", "en", []float32{0.8, 0.5})

	tests := []struct {
		name      string
		maxTokens int
		want      []string
	}{
		{"everything fits", 500, []string{"long", "short", "tiny"}},
		{"long chunk dropped whole", 10, []string{"short", "tiny"}},
		{"only the smallest fits", 3, []string{"tiny"}},
		{"nothing fits", 1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{MaxTokens: tt.maxTokens})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(w))
			assert.LessOrEqual(t, w.TotalTokens, tt.maxTokens)

			sum := 0
			for _, e := range w.Excerpts {
				assert.Equal(t, domain.EstimateTokens(e.Text), e.Tokens)
				sum += e.Tokens
			}
			assert.Equal(t, sum, w.TotalTokens)
		})
	}
}

func TestRetriever_LanguageFilter(t *testing.T) {
	f := newRetrieverFixture(t)
	f.seed(t, "policy", "returns-en", "Returns within 30 days.", "en", []float32{1, 0})
	f.seed(t, "policy", "returns-de", "Rückgabe innerhalb von 30 Tagen.", "de", []float32{1, 0})

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{Language: "de"})
	require.NoError(t, err)
	assert.Equal(t, []string{"returns-de"}, ids(w))
	assert.Equal(t, 1, w.Candidates)
}

func TestRetriever_InactiveChunksNeverLeak(t *testing.T) {
	f := newRetrieverFixture(t)
	f.seed(t, "policy", "returns", "Returns within 30 days.", "en", []float32{1, 0})
	f.seed(t, "faq", "refunds", "Refunds take five days.", "en", []float32{0.9, 0.3})

	// The vector stays in the index; hydration must still drop the row.
	_, err := f.store.DeactivateChunks(context.Background(), "policy", "returns", nil)
	require.NoError(t, err)

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"refunds"}, ids(w))
	assert.Equal(t, 2, w.Candidates)
}

func TestRetriever_ModelMismatch(t *testing.T) {
	f := newRetrieverFixture(t)
	f.embedder.model = "old-model"
	f.seed(t, "policy", "returns", "Returns within 30 days.", "en", []float32{1, 0})
	f.embedder.model = "test-embed"

	_, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	var mismatch *domain.EmbeddingModelMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "old-model", mismatch.IndexModel)
	assert.Equal(t, "test-embed", mismatch.QueryModel)

	pinned := NewRetriever(f.store, f.vectors, f.embedder, WithIndexModel("other-model"))
	_, err = pinned.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingModelMismatch)
}

func TestRetriever_DegradesOnDownstreamFailure(t *testing.T) {
	f := newRetrieverFixture(t)
	f.seed(t, "policy", "returns", "Returns within 30 days.", "en", []float32{1, 0})
	f.embedder.permanent = errors.New("embedding API down")

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.False(t, w.Grounded())

	f.embedder.permanent = nil
	f.embedder.vectors["wrong dims"] = []float32{1, 0, 0}
	w, err = f.retriever.Retrieve(context.Background(), "wrong dims", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.False(t, w.Grounded())
}

func TestRetriever_Settings(t *testing.T) {
	f := newRetrieverFixture(t, WithRetrievalSettings(domain.RetrievalSettings{TopK: 1, MinSimilarity: 0.5, MaxTokens: 40}))
	f.seed(t, "policy", "returns", "Returns within 30 days.", "en", []float32{1, 0})
	f.seed(t, "faq", "refunds", "Refunds take five days.", "en", []float32{0.9, 0.3})

	w, err := f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"returns"}, ids(w))
	assert.Equal(t, 40, w.MaxTokens)

	_, err = f.retriever.Retrieve(context.Background(), "how do returns work", domain.RetrievalContext{MaxTokens: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetriever_WithoutEmbedder(t *testing.T) {
	r := NewRetriever(memory.NewKnowledgeStore(), nil, nil)

	w, err := r.Retrieve(context.Background(), "anything", domain.RetrievalContext{})
	require.NoError(t, err)
	assert.False(t, w.Grounded())
}

func TestRetriever_LanguageScopedOnGraphIndex(t *testing.T) {
	vectors, err := hnsw.New("")
	require.NoError(t, err)
	defer vectors.Close()

	f := newRetrieverFixtureOn(t, vectors)
	f.embedder.vectors["wie funktioniert die rueckgabe"] = []float32{1, 0, 0}

	// A crowd of English chunks sits right next to the query; the single
	// German chunk is further away but still above the similarity floor.
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("en-%03d", i)
		f.seed(t, "faq", id, "Returns answer "+id, "en", []float32{1, float32(i) / 1000, 0.01})
	}
	f.seed(t, "policy", "rueckgabe", "Rueckgabe innerhalb von 30 Tagen.", "de", []float32{0.6, 0, 0.8})

	w, err := f.retriever.Retrieve(context.Background(), "wie funktioniert die rueckgabe", domain.RetrievalContext{Language: "de"})
	require.NoError(t, err)
	require.True(t, w.Grounded())
	assert.Equal(t, []string{"rueckgabe"}, ids(w))
	assert.InDelta(t, 0.6, w.Excerpts[0].Similarity, 0.001)
}
