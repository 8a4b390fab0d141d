package domain

import "time"

// ItemResult is the outcome of indexing one ContentRecord.
type ItemResult struct {
	ChunksProcessed   int
	ChunksInserted    int
	ChunksUpdated     int
	ChunksSkipped     int
	ChunksDeactivated int

	// Errors counts chunks that failed after retries.
	Errors int

	// Skipped is true only when the pass wrote nothing at all.
	Skipped bool
}

// Writes returns the number of chunk rows written or deactivated.
func (r ItemResult) Writes() int {
	return r.ChunksInserted + r.ChunksUpdated + r.ChunksDeactivated
}

// ContentTypeResult is the outcome of indexing every record of one content type.
type ContentTypeResult struct {
	ContentType       ContentType
	ItemsProcessed    int
	ItemsFailed       int
	ItemsSkipped      int
	ChunksProcessed   int
	ChunksInserted    int
	ChunksUpdated     int
	ChunksSkipped     int
	ChunksDeactivated int
	ProcessingTime    time.Duration

	// TimedOut is true when the time budget ended the pass early.
	TimedOut bool

	// Errors holds per-item failure messages.
	Errors []string
}

// Add folds a single item result into the totals.
func (r *ContentTypeResult) Add(item ItemResult) {
	r.ItemsProcessed++
	if item.Skipped {
		r.ItemsSkipped++
	}
	r.ChunksProcessed += item.ChunksProcessed
	r.ChunksInserted += item.ChunksInserted
	r.ChunksUpdated += item.ChunksUpdated
	r.ChunksSkipped += item.ChunksSkipped
	r.ChunksDeactivated += item.ChunksDeactivated
}

// IndexAllOptions configures a full indexing pass.
type IndexAllOptions struct {
	// ContentTypes to index. Empty means every registered type.
	ContentTypes []ContentType

	// ForceReindex recomputes chunks even when unchanged.
	ForceReindex bool

	// MaxExecutionTime bounds the pass. Zero means unbounded.
	// The budget is only checked between documents.
	MaxExecutionTime time.Duration

	// Parallelism bounds concurrent content type lanes. Zero means one lane per type.
	Parallelism int
}

// TypeError records a failure scoped to one content type.
type TypeError struct {
	ContentType ContentType
	Message     string
}

// IndexAllResult is the administrator-facing summary of a full pass.
type IndexAllResult struct {
	// Success is false only when no content type made progress.
	Success           bool
	Statistics        Statistics
	ProcessingSummary map[ContentType]ContentTypeResult
	Errors            []TypeError
	Timestamp         time.Time
	TimedOut          bool
}

// ItemsProcessed sums processed items across content types.
func (r *IndexAllResult) ItemsProcessed() int {
	total := 0
	for _, s := range r.ProcessingSummary {
		total += s.ItemsProcessed
	}
	return total
}

// IndexingRun tracks one in-flight pass over a content type.
// It is owned by the indexer; callers only ever see copies.
type IndexingRun struct {
	CurrentContentType ContentType
	CurrentContentID   string

	// BatchProgress is the processed fraction in [0, 1]. It stays 0 while
	// the total is unknown.
	BatchProgress float64
	TotalItems    int

	ItemsProcessed    int
	ChunksProcessed   int
	ChunksInserted    int
	ChunksUpdated     int
	ChunksSkipped     int
	ChunksDeactivated int
	Errors            int

	StartedAt time.Time
}

// Active reports whether the run is processing a content type.
func (r *IndexingRun) Active() bool {
	return r != nil && r.CurrentContentType != ""
}

// Record applies an item result to the run counters.
func (r *IndexingRun) Record(item ItemResult) {
	r.ItemsProcessed++
	r.ChunksProcessed += item.ChunksProcessed
	r.ChunksInserted += item.ChunksInserted
	r.ChunksUpdated += item.ChunksUpdated
	r.ChunksSkipped += item.ChunksSkipped
	r.ChunksDeactivated += item.ChunksDeactivated
	r.Errors += item.Errors
	if r.TotalItems > 0 {
		r.BatchProgress = float64(r.ItemsProcessed) / float64(r.TotalItems)
		if r.BatchProgress > 1 {
			r.BatchProgress = 1
		}
	}
}

// Statistics are cumulative indexer counters since process start.
type Statistics struct {
	Runs              int
	ItemsProcessed    int
	ItemsFailed       int
	ChunksProcessed   int
	ChunksInserted    int
	ChunksUpdated     int
	ChunksSkipped     int
	ChunksDeactivated int
	ChunksDeleted     int
	EmbeddingRequests int
	Errors            int
	LastRunAt         time.Time
	LastRunDuration   time.Duration

	// Store is a snapshot of the knowledge store, zero if unavailable.
	Store StoreStats
}
