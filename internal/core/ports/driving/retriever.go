package driving

import (
	"context"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// Retriever assembles bounded context windows for a language model call.
type Retriever interface {
	// Retrieve returns the best excerpts for query within rc.MaxTokens.
	// An empty window means no grounding was found. Downstream failures
	// degrade to an empty window; a query embedded with a model other than
	// the index model fails with domain.EmbeddingModelMismatchError.
	Retrieve(ctx context.Context, query string, rc domain.RetrievalContext) (*domain.ContextWindow, error)
}
