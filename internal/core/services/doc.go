// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - Indexer: records to deduplicated, embedded chunks
//   - Retriever: query to bounded context window
//   - Scheduler: periodic full indexing
//   - SettingsService: typed, validated configuration
//   - SourceRegistry: content type to ContentSource mapping
//
// Services are pure Go with no CGO dependencies.
package services
