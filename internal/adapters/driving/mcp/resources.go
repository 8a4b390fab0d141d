package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

const (
	uriScheme = "shopground://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Index statistics and in-flight runs",
		MIMEType:    "application/json",
	}, s.handleStatusResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "content-types",
		Name:        "content-types",
		Description: "Content types the index understands, with active chunk counts",
		MIMEType:    "application/json",
	}, s.handleContentTypesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "runs/{contentType}",
		Name:        "content-type-run",
		Description: "Progress of the in-flight indexing run for one content type",
		MIMEType:    "application/json",
	}, s.handleRunResource)
}

func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, s.status(ctx))
}

func (s *Server) handleContentTypesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	type typeInfo struct {
		Name         string `json:"name"`
		ActiveChunks int    `json:"active_chunks"`
		Indexing     bool   `json:"indexing"`
	}

	var perType map[domain.ContentType]int
	if s.ports.Indexer != nil {
		perType = s.ports.Indexer.Statistics(ctx).Store.PerType
	}

	types := domain.KnownContentTypes()
	infos := make([]typeInfo, len(types))
	for i, ct := range types {
		infos[i] = typeInfo{Name: string(ct), ActiveChunks: perType[ct]}
		if s.ports.Indexer != nil {
			infos[i].Indexing = s.ports.Indexer.IsProcessing(ct)
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleRunResource returns the in-flight run for one content type.
// A type that is not being indexed is reported as not found.
func (s *Server) handleRunResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	ct := extractContentType(req.Params.URI)
	if ct == "" || !ct.IsValid() || s.ports.Indexer == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	for _, run := range s.ports.Indexer.ProcessingStatus() {
		if run.CurrentContentType == ct {
			return jsonResource(req.Params.URI, run)
		}
	}
	return nil, mcp.ResourceNotFoundError(req.Params.URI)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractContentType extracts the content type from a URI like shopground://runs/{contentType}.
func extractContentType(uri string) domain.ContentType {
	const prefix = uriScheme + "runs/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return domain.ContentType(strings.TrimPrefix(uri, prefix))
}
