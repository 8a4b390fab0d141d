package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
	"github.com/custodia-labs/shopground/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.Retriever = (*Retriever)(nil)

// Retriever selects and packs chunk excerpts for a language model call.
// It only reads, so any number of calls may run alongside indexing passes.
type Retriever struct {
	store    driven.KnowledgeStore
	vectors  driven.VectorIndex
	embedder driven.EmbeddingService

	topK          int
	minSimilarity float64
	maxTokens     int
	weights       domain.RankWeights
	priorities    domain.TypePriorities
	indexModel    string
	now           func() time.Time
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRetrievalSettings applies top-K, similarity floor and default token budget.
// Zero values keep the defaults.
func WithRetrievalSettings(s domain.RetrievalSettings) RetrieverOption {
	return func(r *Retriever) {
		if s.TopK > 0 {
			r.topK = s.TopK
		}
		if s.MinSimilarity > 0 {
			r.minSimilarity = s.MinSimilarity
		}
		if s.MaxTokens > 0 {
			r.maxTokens = s.MaxTokens
		}
	}
}

// WithRankWeights overrides the re-ranking weights.
func WithRankWeights(w domain.RankWeights) RetrieverOption {
	return func(r *Retriever) { r.weights = w }
}

// WithTypePriorities overrides the content type priority table.
func WithTypePriorities(p domain.TypePriorities) RetrieverOption {
	return func(r *Retriever) { r.priorities = p }
}

// WithIndexModel pins the model the index was built with.
// Without it the model is read from the stored chunks.
func WithIndexModel(model string) RetrieverOption {
	return func(r *Retriever) { r.indexModel = model }
}

// WithRetrieverClock overrides the clock used for freshness.
func WithRetrieverClock(now func() time.Time) RetrieverOption {
	return func(r *Retriever) { r.now = now }
}

// NewRetriever creates a retriever. A nil embedder or vector index yields
// empty context windows.
func NewRetriever(
	store driven.KnowledgeStore,
	vectors driven.VectorIndex,
	embedder driven.EmbeddingService,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		store:         store,
		vectors:       vectors,
		embedder:      embedder,
		topK:          domain.DefaultTopK,
		minSimilarity: domain.DefaultMinSimilarity,
		maxTokens:     domain.DefaultMaxTokens,
		weights:       domain.DefaultRankWeights(),
		priorities:    domain.DefaultTypePriorities(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the best excerpts for query within the token budget.
func (r *Retriever) Retrieve(ctx context.Context, query string, rc domain.RetrievalContext) (*domain.ContextWindow, error) {
	if rc.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens %d", domain.ErrInvalidInput, rc.MaxTokens)
	}
	maxTokens := rc.MaxTokens
	if maxTokens == 0 {
		maxTokens = r.maxTokens
	}

	query = strings.TrimSpace(query)
	window := &domain.ContextWindow{Query: query, MaxTokens: maxTokens}
	if query == "" {
		return window, nil
	}
	if r.embedder == nil || r.vectors == nil {
		logger.Debug("retrieval disabled: no embedding service or vector index")
		return window, nil
	}

	model := r.embedder.ModelName()
	if err := r.checkModel(ctx, model); err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("retrieval: embed query: %v", err)
		return window, nil
	}

	hits, err := r.vectors.Search(ctx, vec, r.topK, driven.VectorFilter{Language: rc.Language, Scope: rc.Scope})
	if err != nil {
		logger.Warn("retrieval: vector search: %v", err)
		return window, nil
	}
	window.Candidates = len(hits)

	similarity := make(map[string]float64, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < r.minSimilarity {
			continue
		}
		similarity[h.ChunkID] = h.Similarity
		ids = append(ids, h.ChunkID)
	}
	if len(ids) == 0 {
		return window, nil
	}

	chunks, err := r.store.QueryActive(ctx, driven.ChunkFilter{IDs: ids})
	if err != nil {
		logger.Warn("retrieval: hydrate candidates: %v", err)
		return window, nil
	}

	excerpts := r.rank(chunks, similarity, model, rc)
	window.Excerpts, window.TotalTokens = pack(excerpts, maxTokens)

	logger.Debug("retrieval: %d hits, %d above %.2f, %d excerpts, %d/%d tokens",
		len(hits), len(ids), r.minSimilarity, len(window.Excerpts), window.TotalTokens, maxTokens)
	return window, nil
}

// checkModel fails when the query model differs from the model the index was built with.
func (r *Retriever) checkModel(ctx context.Context, queryModel string) error {
	indexModel := r.indexModel
	if indexModel == "" {
		chunks, err := r.store.QueryActive(ctx, driven.ChunkFilter{Limit: 1})
		if err != nil || len(chunks) == 0 {
			return nil
		}
		indexModel = chunks[0].EmbeddingModel
	}
	if indexModel == "" || indexModel == queryModel {
		return nil
	}
	return &domain.EmbeddingModelMismatchError{IndexModel: indexModel, QueryModel: queryModel}
}

// rank scores hydrated chunks and orders them best first.
func (r *Retriever) rank(chunks []domain.Chunk, similarity map[string]float64, model string, rc domain.RetrievalContext) []domain.Excerpt {
	now := r.now()
	excerpts := make([]domain.Excerpt, 0, len(chunks))

	for _, c := range chunks {
		sim, ok := similarity[c.ID]
		if !ok || c.EmbeddingModel != model {
			continue
		}
		if rc.Language != "" && c.Language != rc.Language {
			continue
		}

		priority := r.priorities.Priority(c.ContentType)
		if rc.ContentTypePreference != "" && c.ContentType == rc.ContentTypePreference {
			priority = 1.0
		}
		score := sim*r.weights.Similarity +
			priority*r.weights.TypePriority +
			r.weights.FreshnessScore(c.UpdatedAt, now)*r.weights.Freshness

		title, _ := c.Metadata[domain.MetadataKeyTitle].(string)
		url, _ := c.Metadata[domain.MetadataKeyURL].(string)
		excerpts = append(excerpts, domain.Excerpt{
			ChunkID:     c.ID,
			ContentType: c.ContentType,
			ContentID:   c.ContentID,
			ChunkIndex:  c.ChunkIndex,
			Title:       title,
			URL:         url,
			Language:    c.Language,
			Text:        c.Text,
			Tokens:      domain.EstimateTokens(c.Text),
			Similarity:  sim,
			Score:       score,
			UpdatedAt:   c.UpdatedAt,
		})
	}

	sort.Slice(excerpts, func(i, j int) bool {
		a, b := excerpts[i], excerpts[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ChunkID < b.ChunkID
	})
	return excerpts
}

// pack greedily keeps excerpts that fit the budget. An excerpt that does not
// fit is dropped whole and smaller ones after it are still considered.
func pack(ranked []domain.Excerpt, maxTokens int) ([]domain.Excerpt, int) {
	var (
		out   []domain.Excerpt
		total int
	)
	for _, e := range ranked {
		if e.Tokens == 0 || total+e.Tokens > maxTokens {
			continue
		}
		out = append(out, e)
		total += e.Tokens
	}
	return out, total
}
