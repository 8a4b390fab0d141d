package domain

import "time"

// Chunk is the unit of storage and retrieval.
// The tuple (ContentType, ContentID, ChunkHash) is unique across the store.
type Chunk struct {
	// ID is the store-assigned identifier, also used as the vector key.
	ID string

	// ContentType and ContentID identify the parent document.
	ContentType ContentType
	ContentID   string

	// ChunkIndex is the 0-based position within the document.
	ChunkIndex int

	// TotalChunks is the chunk count at the last successful index of the document.
	TotalChunks int

	// Text is the literal chunk text, overlap included.
	Text string

	// ChunkHash is the content-addressed fingerprint of Text.
	ChunkHash string

	// WordCount is the number of whitespace-separated words in Text.
	WordCount int

	// Embedding is nil until computed.
	Embedding []float32

	// EmbeddingModel identifies the model and version used for Embedding.
	EmbeddingModel string

	// Language is copied from the record for query-time scoping.
	Language string

	// Metadata is copied from the record and augmented with title and url.
	Metadata map[string]any

	// SourceModified is the record's LastModified at the time of indexing.
	SourceModified time.Time

	// IsActive is false for chunks that are no longer part of their document.
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the parent document identity.
func (c *Chunk) Key() ContentKey {
	return ContentKey{ContentType: c.ContentType, ContentID: c.ContentID}
}

// Title returns the document title carried in metadata.
func (c *Chunk) Title() string {
	s, _ := c.Metadata[MetadataKeyTitle].(string)
	return s
}

// URL returns the document url carried in metadata.
func (c *Chunk) URL() string {
	s, _ := c.Metadata[MetadataKeyURL].(string)
	return s
}

// ChunkDraft is a chunk produced by the chunking pipeline before storage.
type ChunkDraft struct {
	Text        string
	ChunkIndex  int
	TotalChunks int
	WordCount   int

	// ChunkHash is stamped by the hasher stage.
	ChunkHash string
}

// StoreStats summarises the contents of a knowledge store.
type StoreStats struct {
	TotalChunks    int
	ActiveChunks   int
	InactiveChunks int

	// Documents counts documents with at least one active chunk.
	Documents int

	// PerType counts active chunks per content type.
	PerType map[ContentType]int
}
