// Package sqlite provides the SQLite implementation of the knowledge store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single database connection backs:
//
//   - KnowledgeStore: Chunk persistence
//   - SchedulerStore: Scheduler task state and run history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// The chunk identity (content_type, content_id, chunk_hash) is a UNIQUE constraint,
// so concurrent writers cannot create duplicate rows.
//
// # Data Location
//
// By default, the database is stored at ~/.shopground/data/knowledge.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
