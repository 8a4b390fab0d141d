package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
	"github.com/custodia-labs/shopground/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.Indexer = (*Indexer)(nil)

// MetadataKeyScope is the record metadata key copied into vector metadata
// as the tenant scope token.
const MetadataKeyScope = "scope"

// Indexer turns content records into deduplicated, embedded chunks.
//
// Within a content type documents are processed one at a time; content types
// run in parallel lanes during IndexAllContent. Each lane owns one
// IndexingRun, and a second pass over a type already in flight is rejected.
type Indexer struct {
	store    driven.KnowledgeStore
	sources  *SourceRegistry
	pipeline driven.PostProcessorPipeline
	vectors  driven.VectorIndex
	embedder driven.EmbeddingService
	retry    RetryConfig
	resolver *embeddingResolver
	now      func() time.Time

	docs keyedMutex

	mu        sync.RWMutex
	batchSize int
	cacheTTL  time.Duration
	runs      map[domain.ContentType]*domain.IndexingRun
	stats     domain.Statistics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithVectorIndex sets the vector index updated after every write.
func WithVectorIndex(v driven.VectorIndex) IndexerOption {
	return func(i *Indexer) { i.vectors = v }
}

// WithEmbeddingService sets the embedding service.
// Without one, chunks are stored without embeddings.
func WithEmbeddingService(e driven.EmbeddingService) IndexerOption {
	return func(i *Indexer) { i.embedder = e }
}

// WithRetryConfig overrides the embedding retry policy.
func WithRetryConfig(cfg RetryConfig) IndexerOption {
	return func(i *Indexer) { i.retry = cfg }
}

// WithIndexerClock overrides the clock used for run timing.
func WithIndexerClock(now func() time.Time) IndexerOption {
	return func(i *Indexer) { i.now = now }
}

// NewIndexer creates an indexer over the given store, sources and chunking pipeline.
func NewIndexer(
	store driven.KnowledgeStore,
	sources *SourceRegistry,
	pipeline driven.PostProcessorPipeline,
	opts ...IndexerOption,
) *Indexer {
	i := &Indexer{
		store:     store,
		sources:   sources,
		pipeline:  pipeline,
		retry:     DefaultRetryConfig(),
		now:       time.Now,
		batchSize: domain.DefaultBatchSize,
		cacheTTL:  domain.DefaultCacheTTL,
		runs:      make(map[domain.ContentType]*domain.IndexingRun),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.sources == nil {
		i.sources, _ = NewSourceRegistry()
	}
	i.resolver = newEmbeddingResolver(store, i.embedder, i.retry)
	return i
}

// IndexSingleItem indexes one record.
func (i *Indexer) IndexSingleItem(ctx context.Context, record domain.ContentRecord, forceReindex bool) (domain.ItemResult, error) {
	return i.indexItem(ctx, record, forceReindex)
}

// indexItem validates, serialises per document and records statistics.
func (i *Indexer) indexItem(ctx context.Context, record domain.ContentRecord, force bool) (domain.ItemResult, error) {
	if err := record.Validate(); err != nil {
		i.recordItem(domain.ItemResult{}, err)
		return domain.ItemResult{}, err
	}

	unlock := i.docs.lock(record.Key().String())
	defer unlock()

	res, err := i.indexRecord(ctx, record, force)
	i.recordItem(res, err)
	return res, err
}

// indexRecord applies the per-chunk dedup decision and deactivates stale chunks.
//
//nolint:gocognit,gocyclo // Sequential per-chunk decision with error isolation
func (i *Indexer) indexRecord(ctx context.Context, record domain.ContentRecord, force bool) (domain.ItemResult, error) {
	var res domain.ItemResult
	key := record.Key()

	drafts, err := i.pipeline.Process(ctx, &record)
	if err != nil {
		return res, fmt.Errorf("chunk %s: %w", key, err)
	}
	if len(drafts) == 0 {
		logger.Debug("%s: empty body after normalisation, skipping", key)
		res.Skipped = true
		return res, nil
	}

	meta := record.ChunkMetadata()
	scope, _ := record.Metadata[MetadataKeyScope].(string)
	model := i.resolver.model()

	seen := make(map[string]bool, len(drafts))
	keep := make([]string, 0, len(drafts))

	for _, draft := range drafts {
		res.ChunksProcessed++

		// Identical text twice in one document maps to one row.
		if seen[draft.ChunkHash] {
			res.ChunksSkipped++
			continue
		}
		seen[draft.ChunkHash] = true
		keep = append(keep, draft.ChunkHash)

		existing, err := i.store.FindByHash(ctx, key.ContentType, key.ContentID, draft.ChunkHash)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			res.Errors++
			logger.Warn("%s chunk %d: lookup failed: %v", key, draft.ChunkIndex, err)
			continue
		}
		if err != nil {
			existing = nil
		}

		if existing != nil && !force && chunkUnchanged(existing, draft, record, meta, model) {
			res.ChunksSkipped++
			continue
		}

		chunk := domain.Chunk{
			ContentType:    key.ContentType,
			ContentID:      key.ContentID,
			ChunkIndex:     draft.ChunkIndex,
			TotalChunks:    draft.TotalChunks,
			Text:           draft.Text,
			ChunkHash:      draft.ChunkHash,
			WordCount:      draft.WordCount,
			Language:       record.Language,
			Metadata:       meta,
			SourceModified: record.LastModified,
			IsActive:       true,
		}
		if existing != nil {
			chunk.ID = existing.ID
			if len(existing.Embedding) > 0 && (model == "" || existing.EmbeddingModel == model) {
				chunk.Embedding = existing.Embedding
				chunk.EmbeddingModel = existing.EmbeddingModel
			}
		}

		if chunk.Embedding == nil && model != "" {
			vec, err := i.resolver.resolve(ctx, draft.Text, draft.ChunkHash)
			if err != nil {
				res.Errors++
				logger.Warn("%s chunk %d: %v", key, draft.ChunkIndex, err)
				continue
			}
			chunk.Embedding = vec
			chunk.EmbeddingModel = model
		}

		stored, err := i.store.UpsertChunk(ctx, chunk)
		if err != nil {
			res.Errors++
			logger.Warn("%s chunk %d: store failed: %v", key, draft.ChunkIndex, err)
			continue
		}
		if existing == nil {
			res.ChunksInserted++
		} else {
			res.ChunksUpdated++
		}
		i.upsertVector(ctx, stored, scope)
	}

	// A partially failed document keeps its previous chunk set visible.
	if res.Errors > 0 {
		logger.Warn("%s: %d chunks failed, stale chunks left active", key, res.Errors)
		res.Skipped = res.Writes() == 0
		return res, nil
	}

	deactivated, err := i.store.DeactivateChunks(ctx, key.ContentType, key.ContentID, keep)
	if err != nil {
		return res, fmt.Errorf("deactivate stale chunks of %s: %w", key, err)
	}
	res.ChunksDeactivated = len(deactivated)
	for _, c := range deactivated {
		i.deleteVector(ctx, c.ID)
	}

	res.Skipped = res.Writes() == 0
	return res, nil
}

// chunkUnchanged reports whether a stored row already reflects the draft.
// A zero record timestamp counts as unchanged.
func chunkUnchanged(existing *domain.Chunk, draft domain.ChunkDraft, record domain.ContentRecord, meta map[string]any, model string) bool {
	if !existing.IsActive || existing.ChunkIndex != draft.ChunkIndex || existing.Language != record.Language {
		return false
	}
	if !record.LastModified.IsZero() && !record.LastModified.Equal(existing.SourceModified) {
		return false
	}
	if model != "" && (existing.EmbeddingModel != model || len(existing.Embedding) == 0) {
		return false
	}
	return domain.MetadataEqual(existing.Metadata, meta)
}

func (i *Indexer) upsertVector(ctx context.Context, chunk domain.Chunk, scope string) {
	if i.vectors == nil || len(chunk.Embedding) == 0 {
		return
	}
	meta := driven.VectorMetadata{
		ContentType: string(chunk.ContentType),
		ContentID:   chunk.ContentID,
		Language:    chunk.Language,
		Scope:       scope,
	}
	if err := i.vectors.Upsert(ctx, chunk.ID, chunk.Embedding, meta); err != nil {
		logger.Warn("vector upsert %s: %v", chunk.ID, err)
		i.mu.Lock()
		i.stats.Errors++
		i.mu.Unlock()
	}
}

func (i *Indexer) deleteVector(ctx context.Context, chunkID string) {
	if i.vectors == nil {
		return
	}
	if err := i.vectors.Delete(ctx, chunkID); err != nil {
		logger.Warn("vector delete %s: %v", chunkID, err)
	}
}

// IndexContentType indexes every record of one content type.
func (i *Indexer) IndexContentType(ctx context.Context, contentType domain.ContentType, forceReindex bool) (domain.ContentTypeResult, error) {
	if !contentType.IsValid() {
		return domain.ContentTypeResult{ContentType: contentType},
			fmt.Errorf("%w: content type %q", domain.ErrInvalidInput, contentType)
	}

	start := i.now()
	res, err := i.indexType(ctx, contentType, forceReindex, time.Time{})
	i.recordRun(start)
	return res, err
}

// indexType runs one lane. The deadline, when set, is checked between documents.
//
//nolint:gocognit // Channel fan-in with batch flushing
func (i *Indexer) indexType(ctx context.Context, ct domain.ContentType, force bool, deadline time.Time) (domain.ContentTypeResult, error) {
	result := domain.ContentTypeResult{ContentType: ct}
	start := i.now()
	defer func() { result.ProcessingTime = i.now().Sub(start) }()

	src, err := i.sources.Get(ct)
	if err != nil {
		return result, err
	}

	run, err := i.beginRun(ct)
	if err != nil {
		return result, err
	}
	defer i.endRun(ct)

	if counter, ok := src.(driven.CountingSource); ok {
		if n, err := counter.Count(ctx); err == nil {
			i.updateRun(run, func(r *domain.IndexingRun) { r.TotalItems = n })
		}
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	records, errs := src.ListAll(listCtx)

	batchSize := i.BatchSize()
	batch := make([]domain.ContentRecord, 0, batchSize)
	batches := 0

	// process returns false when the pass must stop.
	process := func() bool {
		batches++
		logger.Debug("%s: batch %d (%d items)", ct, batches, len(batch))
		defer func() { batch = batch[:0] }()

		for _, record := range batch {
			if !deadline.IsZero() && !i.now().Before(deadline) {
				result.TimedOut = true
				logger.Warn("%s: time budget exhausted after %d items", ct, result.ItemsProcessed)
				return false
			}
			if ctx.Err() != nil {
				return false
			}

			i.updateRun(run, func(r *domain.IndexingRun) { r.CurrentContentID = record.ContentID })
			item, err := i.indexItem(ctx, record, force)
			i.updateRun(run, func(r *domain.IndexingRun) {
				r.Record(item)
				if err != nil {
					r.Errors++
				}
			})
			result.Add(item)

			switch {
			case err != nil:
				result.ItemsFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", record.ContentID, err))
				logger.Debug("%s/%s failed: %v", ct, record.ContentID, err)
			case item.Errors > 0:
				result.ItemsFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %d chunks failed", record.ContentID, item.Errors))
			}
		}
		return true
	}

	var sourceErr error
	stopped := false
	for records != nil && !stopped {
		select {
		case <-ctx.Done():
			stopped = true

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				sourceErr = err
			}

		case record, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			batch = append(batch, record)
			if len(batch) >= batchSize {
				stopped = !process()
			}
		}
	}
	if !stopped && len(batch) > 0 {
		stopped = !process()
	}
	if !stopped && sourceErr == nil && errs != nil {
		sourceErr = <-errs
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if sourceErr != nil {
		return result, fmt.Errorf("list %s: %w", ct, sourceErr)
	}

	logger.Info("%s: %d items, %d inserted, %d updated, %d skipped, %d deactivated in %s",
		ct, result.ItemsProcessed, result.ChunksInserted, result.ChunksUpdated,
		result.ChunksSkipped, result.ChunksDeactivated, i.now().Sub(start))
	return result, nil
}

// IndexAllContent indexes the requested content types in parallel lanes.
func (i *Indexer) IndexAllContent(ctx context.Context, opts domain.IndexAllOptions) (*domain.IndexAllResult, error) {
	if err := i.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	types := dedupTypes(opts.ContentTypes)
	if len(types) == 0 {
		types = i.sources.Types()
	}

	start := i.now()
	var deadline time.Time
	if opts.MaxExecutionTime > 0 {
		deadline = start.Add(opts.MaxExecutionTime)
	}

	result := &domain.IndexAllResult{
		ProcessingSummary: make(map[domain.ContentType]domain.ContentTypeResult, len(types)),
		Timestamp:         start,
	}

	lanes := opts.Parallelism
	if lanes <= 0 {
		lanes = len(types)
	}

	var (
		g          errgroup.Group
		mu         sync.Mutex
		progressed int
	)
	g.SetLimit(max(lanes, 1))

	logger.Section("Indexing")
	for _, ct := range types {
		g.Go(func() error {
			res, err := i.indexType(ctx, ct, opts.ForceReindex, deadline)

			mu.Lock()
			defer mu.Unlock()
			result.ProcessingSummary[ct] = res
			if res.TimedOut {
				result.TimedOut = true
			}
			if err != nil {
				logger.Warn("%s: %v", ct, err)
				result.Errors = append(result.Errors, domain.TypeError{ContentType: ct, Message: err.Error()})
			}
			if err == nil || res.ItemsProcessed > 0 {
				progressed++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(a, b int) bool {
		return result.Errors[a].ContentType < result.Errors[b].ContentType
	})
	result.Success = len(types) == 0 || progressed > 0

	i.recordRun(start)
	result.Statistics = i.Statistics(ctx)
	return result, nil
}

// RemoveContent hard-deletes every chunk of a document and its vectors.
func (i *Indexer) RemoveContent(ctx context.Context, contentID string, contentType domain.ContentType) (bool, error) {
	record := domain.ContentRecord{ContentID: contentID, ContentType: contentType, Body: "-"}
	if err := record.Validate(); err != nil {
		return false, err
	}

	unlock := i.docs.lock(record.Key().String())
	defer unlock()

	chunks, err := i.store.FindByContentKey(ctx, contentType, contentID)
	if err != nil {
		return false, fmt.Errorf("find chunks of %s: %w", record.Key(), err)
	}

	n, err := i.store.DeleteAllForContent(ctx, contentType, contentID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", record.Key(), err)
	}
	for _, c := range chunks {
		i.deleteVector(ctx, c.ID)
	}

	i.mu.Lock()
	i.stats.ChunksDeleted += n
	i.mu.Unlock()

	if n > 0 {
		logger.Debug("removed %s (%d chunks)", record.Key(), n)
	}
	return n > 0, nil
}

// HandleChange applies a change event from a watching source.
func (i *Indexer) HandleChange(ctx context.Context, change domain.ContentChange) error {
	switch change.Kind {
	case domain.ChangeCreated, domain.ChangeUpdated:
		res, err := i.IndexSingleItem(ctx, change.Record, false)
		if err != nil {
			return fmt.Errorf("index %s: %w", change.Record.Key(), err)
		}
		logger.Info("%s %s: %d inserted, %d updated, %d deactivated",
			change.Kind, change.Record.Key(), res.ChunksInserted, res.ChunksUpdated, res.ChunksDeactivated)
		return nil

	case domain.ChangeDeleted:
		removed, err := i.RemoveContent(ctx, change.Record.ContentID, change.Record.ContentType)
		if err != nil {
			return err
		}
		logger.Info("deleted %s: removed=%t", change.Record.Key(), removed)
		return nil

	default:
		return fmt.Errorf("%w: change kind %d", domain.ErrInvalidInput, change.Kind)
	}
}

// RebuildVectors re-adds every active embedded chunk of the current model to
// the vector index. Used when the index file is missing or was rebuilt.
func (i *Indexer) RebuildVectors(ctx context.Context) (int, error) {
	if i.vectors == nil {
		return 0, domain.ErrVectorIndexUnavailable
	}
	model := i.resolver.model()

	chunks, err := i.store.QueryActive(ctx, driven.ChunkFilter{})
	if err != nil {
		return 0, fmt.Errorf("query active chunks: %w", err)
	}

	added := 0
	for _, c := range chunks {
		if len(c.Embedding) == 0 || (model != "" && c.EmbeddingModel != model) {
			continue
		}
		scope, _ := c.Metadata[MetadataKeyScope].(string)
		meta := driven.VectorMetadata{
			ContentType: string(c.ContentType),
			ContentID:   c.ContentID,
			Language:    c.Language,
			Scope:       scope,
		}
		if err := i.vectors.Upsert(ctx, c.ID, c.Embedding, meta); err != nil {
			return added, fmt.Errorf("upsert vector %s: %w", c.ID, err)
		}
		added++
	}
	return added, nil
}

// Statistics returns cumulative counters plus a store snapshot.
func (i *Indexer) Statistics(ctx context.Context) domain.Statistics {
	i.mu.RLock()
	stats := i.stats
	i.mu.RUnlock()

	stats.EmbeddingRequests = i.resolver.Requests()
	if storeStats, err := i.store.Stats(ctx); err == nil {
		stats.Store = storeStats
	} else {
		logger.Debug("store stats unavailable: %v", err)
	}
	return stats
}

// ProcessingStatus returns copies of in-flight runs ordered by content type.
func (i *Indexer) ProcessingStatus() []domain.IndexingRun {
	i.mu.RLock()
	defer i.mu.RUnlock()

	runs := make([]domain.IndexingRun, 0, len(i.runs))
	for _, run := range i.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(a, b int) bool {
		return runs[a].CurrentContentType < runs[b].CurrentContentType
	})
	return runs
}

// IsProcessing reports whether any of the given types (or any type at all) is being indexed.
func (i *Indexer) IsProcessing(contentTypes ...domain.ContentType) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(contentTypes) == 0 {
		for _, run := range i.runs {
			if run.Active() {
				return true
			}
		}
		return false
	}
	for _, ct := range contentTypes {
		if run, ok := i.runs[ct]; ok && run.Active() {
			return true
		}
	}
	return false
}

// SetBatchSize changes the number of records pulled per batch.
func (i *Indexer) SetBatchSize(n int) error {
	if err := domain.ValidateBatchSize(n); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.batchSize = n
	return nil
}

// BatchSize returns the current batch size.
func (i *Indexer) BatchSize() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.batchSize
}

// SetCacheTTL changes the embedding cache lifetime.
func (i *Indexer) SetCacheTTL(ttl time.Duration) error {
	if err := domain.ValidateCacheTTL(ttl); err != nil {
		return err
	}
	if cfg, ok := i.embedder.(driven.TTLConfigurable); ok {
		if err := cfg.SetTTL(ttl); err != nil {
			return err
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cacheTTL = ttl
	return nil
}

// CacheTTL returns the current embedding cache lifetime.
func (i *Indexer) CacheTTL() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cacheTTL
}

func (i *Indexer) beginRun(ct domain.ContentType) (*domain.IndexingRun, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, running := i.runs[ct]; running {
		return nil, fmt.Errorf("%s: %w", ct, domain.ErrIndexingInProgress)
	}
	run := &domain.IndexingRun{
		CurrentContentType: ct,
		StartedAt:          i.now(),
	}
	i.runs[ct] = run
	return run, nil
}

func (i *Indexer) updateRun(run *domain.IndexingRun, fn func(*domain.IndexingRun)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(run)
}

func (i *Indexer) endRun(ct domain.ContentType) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.runs, ct)
}

func (i *Indexer) recordItem(res domain.ItemResult, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stats.ItemsProcessed++
	if err != nil || res.Errors > 0 {
		i.stats.ItemsFailed++
	}
	if err != nil {
		i.stats.Errors++
	}
	i.stats.Errors += res.Errors
	i.stats.ChunksProcessed += res.ChunksProcessed
	i.stats.ChunksInserted += res.ChunksInserted
	i.stats.ChunksUpdated += res.ChunksUpdated
	i.stats.ChunksSkipped += res.ChunksSkipped
	i.stats.ChunksDeactivated += res.ChunksDeactivated
}

func (i *Indexer) recordRun(start time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.Runs++
	i.stats.LastRunAt = start
	i.stats.LastRunDuration = i.now().Sub(start)
}

func dedupTypes(types []domain.ContentType) []domain.ContentType {
	seen := make(map[domain.ContentType]bool, len(types))
	out := make([]domain.ContentType, 0, len(types))
	for _, ct := range types {
		if seen[ct] {
			continue
		}
		seen[ct] = true
		out = append(out, ct)
	}
	return out
}
