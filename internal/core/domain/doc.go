// Package domain defines the core business entities for shopground.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ContentRecord: A normalised store document (product, page, policy, FAQ)
//   - Chunk: A bounded span of document text, the unit of embedding and retrieval
//   - IndexingRun: In-flight progress of one indexing pass over a content type
//   - ContextWindow: The bounded set of excerpts that grounds one model call
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
