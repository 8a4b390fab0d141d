// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for indexing to function:
//
//   - KnowledgeStore: Chunk persistence keyed by (contentType, contentId, chunkHash)
//   - ContentSource: Produces ContentRecords for one content type
//   - PostProcessorPipeline: Turns a record body into hashed chunk drafts
//   - EmbeddingService: Generates vector embeddings
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex: Similarity search. Without it, retrieval returns empty windows.
//   - SchedulerStore: Scheduler state. Without it, task state is kept in memory only.
//   - TTLConfigurable: Implemented by caching embedding services.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
