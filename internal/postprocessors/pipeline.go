// Package postprocessors turns content record bodies into hashed chunk drafts.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline chains multiple PostProcessors and runs them in order.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process runs the record through all processors in order.
// The first processor receives nil drafts and should create them.
// Subsequent processors receive and may modify the drafts.
func (p *Pipeline) Process(ctx context.Context, record *domain.ContentRecord) ([]domain.ChunkDraft, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}

	var drafts []domain.ChunkDraft

	for _, processor := range p.processors {
		var err error
		drafts, err = processor.Process(ctx, record, drafts)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	return drafts, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Names returns processor names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}
