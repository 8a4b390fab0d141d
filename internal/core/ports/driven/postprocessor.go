package driven

import (
	"context"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// PostProcessor turns a record into chunk drafts or transforms drafts.
// PostProcessors are chained in a pipeline (chunker, then hasher).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a record and the drafts produced so far.
	// A producing processor (chunker) receives nil drafts and returns new ones.
	// A transforming processor (hasher) receives drafts and returns them modified.
	Process(ctx context.Context, record *domain.ContentRecord, drafts []domain.ChunkDraft) ([]domain.ChunkDraft, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the record through all processors in order.
	// Returns the final drafts after all processing.
	Process(ctx context.Context, record *domain.ContentRecord) ([]domain.ChunkDraft, error)
}
