package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// mockRetriever is a mock implementation of driving.Retriever.
type mockRetriever struct {
	window *domain.ContextWindow
	err    error

	lastQuery string
	lastRC    domain.RetrievalContext
}

func (m *mockRetriever) Retrieve(
	_ context.Context,
	query string,
	rc domain.RetrievalContext,
) (*domain.ContextWindow, error) {
	m.lastQuery = query
	m.lastRC = rc
	if m.err != nil {
		return nil, m.err
	}
	if m.window == nil {
		return &domain.ContextWindow{Query: query, MaxTokens: rc.MaxTokens}, nil
	}
	return m.window, nil
}

// mockIndexer is a mock implementation of driving.Indexer.
type mockIndexer struct {
	stats domain.Statistics
	runs  []domain.IndexingRun
}

func (m *mockIndexer) IndexSingleItem(context.Context, domain.ContentRecord, bool) (domain.ItemResult, error) {
	return domain.ItemResult{}, nil
}

func (m *mockIndexer) IndexContentType(_ context.Context, ct domain.ContentType, _ bool) (domain.ContentTypeResult, error) {
	return domain.ContentTypeResult{ContentType: ct}, nil
}

func (m *mockIndexer) IndexAllContent(context.Context, domain.IndexAllOptions) (*domain.IndexAllResult, error) {
	return &domain.IndexAllResult{Success: true}, nil
}

func (m *mockIndexer) RemoveContent(context.Context, string, domain.ContentType) (bool, error) {
	return false, nil
}

func (m *mockIndexer) HandleChange(context.Context, domain.ContentChange) error {
	return nil
}

func (m *mockIndexer) Statistics(context.Context) domain.Statistics {
	return m.stats
}

func (m *mockIndexer) ProcessingStatus() []domain.IndexingRun {
	return m.runs
}

func (m *mockIndexer) IsProcessing(types ...domain.ContentType) bool {
	for _, run := range m.runs {
		if len(types) == 0 {
			return true
		}
		for _, ct := range types {
			if run.CurrentContentType == ct {
				return true
			}
		}
	}
	return false
}

func (m *mockIndexer) SetBatchSize(int) error {
	return nil
}

func (m *mockIndexer) SetCacheTTL(time.Duration) error {
	return nil
}
