package domain

import (
	"fmt"
	"time"
)

// Batch size and cache TTL bounds.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 100
	DefaultBatchSize = 20

	MinCacheTTL     = 60 * time.Second
	MaxCacheTTL     = 7 * 24 * time.Hour
	DefaultCacheTTL = time.Hour
)

// Chunking defaults.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Retrieval defaults.
const (
	DefaultTopK          = 20
	DefaultMinSimilarity = 0.35
	DefaultMaxTokens     = 1500
)

// EmbeddingProvider identifies an embedding service.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderOpenAI is the OpenAI embeddings API.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderOpenAI, EmbeddingProviderOllama:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// IndexingSettings holds indexing behaviour configuration.
type IndexingSettings struct {
	BatchSize int
	CacheTTL  time.Duration
	ChunkSize int
	Overlap   int

	// ContentTypes is the allowlist. Empty means every registered type.
	ContentTypes []ContentType

	ForceReindex     bool
	MaxExecutionTime time.Duration
	Parallelism      int
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider EmbeddingProvider
	Model    string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// CacheSize is the in-memory embedding cache capacity. Zero disables the cache.
	CacheSize int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Model == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RetrievalSettings holds query-time configuration.
type RetrievalSettings struct {
	TopK          int
	MinSimilarity float64
	MaxTokens     int
}

// SchedulerSettings holds background indexing configuration.
type SchedulerSettings struct {
	Enabled  bool
	Interval time.Duration
}

// Settings is the full application configuration.
type Settings struct {
	Indexing   IndexingSettings
	Embedding  EmbeddingSettings
	Retrieval  RetrievalSettings
	Scheduler  SchedulerSettings
	ContentDir string
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Indexing: IndexingSettings{
			BatchSize: DefaultBatchSize,
			CacheTTL:  DefaultCacheTTL,
			ChunkSize: DefaultChunkSize,
			Overlap:   DefaultOverlap,
		},
		Embedding: EmbeddingSettings{
			Provider:  EmbeddingProviderOllama,
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			CacheSize: 4096,
		},
		Retrieval: RetrievalSettings{
			TopK:          DefaultTopK,
			MinSimilarity: DefaultMinSimilarity,
			MaxTokens:     DefaultMaxTokens,
		},
		Scheduler: SchedulerSettings{
			Enabled:  false,
			Interval: time.Hour,
		},
	}
}

// ValidateBatchSize rejects batch sizes outside [MinBatchSize, MaxBatchSize].
func ValidateBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return &ConfigurationError{
			Setting: "batch size",
			Value:   n,
			Reason:  fmt.Sprintf("must be between %d and %d", MinBatchSize, MaxBatchSize),
		}
	}
	return nil
}

// ValidateCacheTTL rejects TTLs outside [MinCacheTTL, MaxCacheTTL].
func ValidateCacheTTL(d time.Duration) error {
	if d < MinCacheTTL || d > MaxCacheTTL {
		return &ConfigurationError{
			Setting: "cache ttl",
			Value:   d,
			Reason:  fmt.Sprintf("must be between %s and %s", MinCacheTTL, MaxCacheTTL),
		}
	}
	return nil
}

// Validate checks every section and returns the first ConfigurationError.
func (s Settings) Validate() error {
	if err := ValidateBatchSize(s.Indexing.BatchSize); err != nil {
		return err
	}
	if err := ValidateCacheTTL(s.Indexing.CacheTTL); err != nil {
		return err
	}
	if s.Indexing.ChunkSize <= 0 {
		return &ConfigurationError{Setting: "chunk size", Value: s.Indexing.ChunkSize, Reason: "must be positive"}
	}
	if s.Indexing.Overlap < 0 || s.Indexing.Overlap >= s.Indexing.ChunkSize {
		return &ConfigurationError{Setting: "overlap", Value: s.Indexing.Overlap, Reason: "must be in [0, chunk size)"}
	}
	if s.Indexing.MaxExecutionTime < 0 {
		return &ConfigurationError{Setting: "max execution time", Value: s.Indexing.MaxExecutionTime, Reason: "must not be negative"}
	}
	if s.Indexing.Parallelism < 0 {
		return &ConfigurationError{Setting: "parallelism", Value: s.Indexing.Parallelism, Reason: "must not be negative"}
	}
	for _, ct := range s.Indexing.ContentTypes {
		if !ct.IsValid() {
			return &ConfigurationError{Setting: "content type", Value: ct, Reason: "must be a lowercase token"}
		}
	}
	if !s.Embedding.Provider.IsValid() {
		return &ConfigurationError{Setting: "embedding provider", Value: s.Embedding.Provider, Reason: "must be openai or ollama"}
	}
	if s.Embedding.RequestsPerSecond < 0 {
		return &ConfigurationError{Setting: "requests per second", Value: s.Embedding.RequestsPerSecond, Reason: "must not be negative"}
	}
	if s.Embedding.CacheSize < 0 {
		return &ConfigurationError{Setting: "embedding cache size", Value: s.Embedding.CacheSize, Reason: "must not be negative"}
	}
	if s.Retrieval.TopK <= 0 {
		return &ConfigurationError{Setting: "top k", Value: s.Retrieval.TopK, Reason: "must be positive"}
	}
	if s.Retrieval.MinSimilarity < 0 || s.Retrieval.MinSimilarity > 1 {
		return &ConfigurationError{Setting: "min similarity", Value: s.Retrieval.MinSimilarity, Reason: "must be between 0 and 1"}
	}
	if s.Retrieval.MaxTokens <= 0 {
		return &ConfigurationError{Setting: "max tokens", Value: s.Retrieval.MaxTokens, Reason: "must be positive"}
	}
	if s.Scheduler.Enabled && s.Scheduler.Interval < time.Minute {
		return &ConfigurationError{Setting: "scheduler interval", Value: s.Scheduler.Interval, Reason: "must be at least 1m"}
	}
	return nil
}

// Options converts the indexing settings into options for a full pass.
func (s IndexingSettings) Options() IndexAllOptions {
	return IndexAllOptions{
		ContentTypes:     append([]ContentType(nil), s.ContentTypes...),
		ForceReindex:     s.ForceReindex,
		MaxExecutionTime: s.MaxExecutionTime,
		Parallelism:      s.Parallelism,
	}
}
