// Package mcp provides an MCP (Model Context Protocol) server adapter for shopground.
// It lets an assistant pull grounded store context and inspect indexing progress.
package mcp

import "errors"

// ErrMissingRetriever is returned when the retriever port is not provided.
var ErrMissingRetriever = errors.New("mcp: retriever is required")
