// Package ai provides factory functions for creating embedding service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/shopground/internal/adapters/driven/embedding"
	ollamaembed "github.com/custodia-labs/shopground/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/shopground/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// modelDimensions lists the vector sizes of common embedding models.
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// ModelDimensions returns the known vector size for a model, or zero.
func ModelDimensions(model string) int {
	return modelDimensions[model]
}

// CreateEmbeddingService creates the provider client for the given settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.EmbeddingProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.EmbeddingProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// BuildEmbeddingService creates the provider client wrapped in the rate limiter
// and the TTL cache. Cache hits never spend rate-limit tokens.
// Returns nil if the provider is not configured.
func BuildEmbeddingService(settings *domain.EmbeddingSettings, cacheTTL time.Duration) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return nil, err
	}

	limited := embedding.NewRateLimitedService(svc, settings.RequestsPerSecond, settings.Burst)
	cached, err := embedding.NewCachedService(limited, settings.CacheSize, cacheTTL)
	if err != nil {
		svc.Close()
		return nil, err
	}
	return cached, nil
}

// ValidateEmbeddingConfig builds the provider client and pings it.
// An unconfigured provider is valid: chunks are then stored without embeddings.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return fmt.Errorf("%w: %w. Run 'shopground config' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable (%w). Run 'shopground config' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := ModelDimensions(settings.Model)
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: ModelDimensions(settings.Model),
	})
}
