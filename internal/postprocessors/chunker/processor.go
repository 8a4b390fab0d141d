// Package chunker provides a boundary-aware text chunking processor.
package chunker

import (
	"context"
	"fmt"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultOverlap

// Processor splits record bodies into bounded chunk drafts.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int

	// typeSizes overrides chunkSize per content type.
	typeSizes map[domain.ContentType]int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithTypeChunkSize sets the chunk size for one content type.
func WithTypeChunkSize(ct domain.ContentType, size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.typeSizes[ct] = size
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		typeSizes: make(map[domain.ContentType]int),
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the chunk size used for a content type.
func (p *Processor) ChunkSize(ct domain.ContentType) int {
	if size, ok := p.typeSizes[ct]; ok {
		return size
	}
	return p.chunkSize
}

// Chunk splits body using the size configured for contentType.
func (p *Processor) Chunk(body string, contentType domain.ContentType) []domain.ChunkDraft {
	return Split(body, p.ChunkSize(contentType), p.overlap)
}

// Process splits the record body into drafts.
// Input drafts are ignored; this processor creates new drafts from the body.
// An empty body yields no drafts.
func (p *Processor) Process(ctx context.Context, record *domain.ContentRecord, _ []domain.ChunkDraft) ([]domain.ChunkDraft, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Chunk(record.Body, record.ContentType), nil
}
