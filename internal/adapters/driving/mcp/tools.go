package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// RetrieveInput is the input schema for the retrieve_context tool.
type RetrieveInput struct {
	Query       string `json:"query" jsonschema:"the shopper question to ground"`
	Language    string `json:"language,omitempty" jsonschema:"restrict excerpts to one language code"`
	ContentType string `json:"content_type,omitempty" jsonschema:"content type to rank first, such as product or policy"`
	MaxTokens   int    `json:"max_tokens,omitempty" jsonschema:"token budget for the context window (default from settings)"`
}

// RetrieveOutput is the output schema for the retrieve_context tool.
type RetrieveOutput struct {
	Grounded    bool            `json:"grounded"`
	Excerpts    []ExcerptOutput `json:"excerpts"`
	TotalTokens int             `json:"total_tokens"`
	MaxTokens   int             `json:"max_tokens"`
	Candidates  int             `json:"candidates"`
}

// ExcerptOutput is one excerpt of a context window.
type ExcerptOutput struct {
	ContentType string  `json:"content_type"`
	ContentID   string  `json:"content_id"`
	ChunkIndex  int     `json:"chunk_index"`
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Language    string  `json:"language,omitempty"`
	Text        string  `json:"text"`
	Tokens      int     `json:"tokens"`
	Similarity  float64 `json:"similarity"`
	Score       float64 `json:"score"`
}

// StatusInput is the input schema for the indexing_status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the indexing_status tool.
type StatusOutput struct {
	Statistics StatisticsOutput `json:"statistics"`
	Runs       []RunOutput      `json:"runs"`
}

// StatisticsOutput mirrors the indexer's cumulative counters.
type StatisticsOutput struct {
	Runs              int            `json:"runs"`
	ItemsProcessed    int            `json:"items_processed"`
	ItemsFailed       int            `json:"items_failed"`
	ChunksInserted    int            `json:"chunks_inserted"`
	ChunksUpdated     int            `json:"chunks_updated"`
	ChunksSkipped     int            `json:"chunks_skipped"`
	ChunksDeactivated int            `json:"chunks_deactivated"`
	ChunksDeleted     int            `json:"chunks_deleted"`
	EmbeddingRequests int            `json:"embedding_requests"`
	ActiveChunks      int            `json:"active_chunks"`
	InactiveChunks    int            `json:"inactive_chunks"`
	Documents         int            `json:"documents"`
	PerType           map[string]int `json:"per_type,omitempty"`
	LastRunAt         string         `json:"last_run_at,omitempty"`
}

// RunOutput is a snapshot of one in-flight indexing run.
type RunOutput struct {
	ContentType    string  `json:"content_type"`
	CurrentContent string  `json:"current_content,omitempty"`
	Progress       float64 `json:"progress"`
	TotalItems     int     `json:"total_items"`
	ItemsProcessed int     `json:"items_processed"`
	Errors         int     `json:"errors"`
	StartedAt      string  `json:"started_at"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve ranked store excerpts that ground an answer to a shopper question",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "indexing_status",
		Description: "Report index statistics and in-flight indexing runs",
	}, s.handleStatus)
}

// handleRetrieve handles the retrieve_context tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	rc := domain.RetrievalContext{
		Language:              input.Language,
		ContentTypePreference: domain.ContentType(input.ContentType),
		MaxTokens:             input.MaxTokens,
	}
	if rc.ContentTypePreference != "" && !rc.ContentTypePreference.IsValid() {
		return nil, RetrieveOutput{}, &domain.ValidationError{
			Field:  "content_type",
			Reason: "malformed content type " + input.ContentType,
		}
	}

	window, err := s.ports.Retriever.Retrieve(ctx, input.Query, rc)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Grounded:    window.Grounded(),
		Excerpts:    make([]ExcerptOutput, len(window.Excerpts)),
		TotalTokens: window.TotalTokens,
		MaxTokens:   window.MaxTokens,
		Candidates:  window.Candidates,
	}
	for i := range window.Excerpts {
		e := &window.Excerpts[i]
		output.Excerpts[i] = ExcerptOutput{
			ContentType: string(e.ContentType),
			ContentID:   e.ContentID,
			ChunkIndex:  e.ChunkIndex,
			Title:       e.Title,
			URL:         e.URL,
			Language:    e.Language,
			Text:        e.Text,
			Tokens:      e.Tokens,
			Similarity:  e.Similarity,
			Score:       e.Score,
		}
	}

	return nil, output, nil
}

// handleStatus handles the indexing_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, s.status(ctx), nil
}

func (s *Server) status(ctx context.Context) StatusOutput {
	out := StatusOutput{Runs: []RunOutput{}}
	if s.ports.Indexer == nil {
		return out
	}

	stats := s.ports.Indexer.Statistics(ctx)
	out.Statistics = StatisticsOutput{
		Runs:              stats.Runs,
		ItemsProcessed:    stats.ItemsProcessed,
		ItemsFailed:       stats.ItemsFailed,
		ChunksInserted:    stats.ChunksInserted,
		ChunksUpdated:     stats.ChunksUpdated,
		ChunksSkipped:     stats.ChunksSkipped,
		ChunksDeactivated: stats.ChunksDeactivated,
		ChunksDeleted:     stats.ChunksDeleted,
		EmbeddingRequests: stats.EmbeddingRequests,
		ActiveChunks:      stats.Store.ActiveChunks,
		InactiveChunks:    stats.Store.InactiveChunks,
		Documents:         stats.Store.Documents,
	}
	if len(stats.Store.PerType) > 0 {
		out.Statistics.PerType = make(map[string]int, len(stats.Store.PerType))
		for ct, n := range stats.Store.PerType {
			out.Statistics.PerType[string(ct)] = n
		}
	}
	if !stats.LastRunAt.IsZero() {
		out.Statistics.LastRunAt = stats.LastRunAt.UTC().Format(time.RFC3339)
	}

	for _, run := range s.ports.Indexer.ProcessingStatus() {
		out.Runs = append(out.Runs, RunOutput{
			ContentType:    string(run.CurrentContentType),
			CurrentContent: run.CurrentContentID,
			Progress:       run.BatchProgress,
			TotalItems:     run.TotalItems,
			ItemsProcessed: run.ItemsProcessed,
			Errors:         run.Errors,
			StartedAt:      run.StartedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
