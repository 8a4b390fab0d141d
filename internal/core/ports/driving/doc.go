// Package driving declares what the CLI and the MCP server call into:
// indexing, retrieval and the background scheduler.
//
// The services package implements every interface here.
package driving
