package mcp

import (
	"github.com/custodia-labs/shopground/internal/core/ports/driving"
)

// Ports holds the driving ports the MCP server exposes.
type Ports struct {
	// Retriever is required.
	Retriever driving.Retriever

	// Indexer is optional. Without it the status tool and resources
	// report an empty index.
	Indexer driving.Indexer
}

// Validate checks that required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Retriever == nil {
		return ErrMissingRetriever
	}
	return nil
}
