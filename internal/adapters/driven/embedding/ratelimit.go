package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*RateLimitedService)(nil)

// RateLimitedService throttles requests to a billable embedding API.
// One token is spent per request, so a batch costs the same as a single text.
type RateLimitedService struct {
	inner   driven.EmbeddingService
	limiter *rate.Limiter
}

// NewRateLimitedService allows requestsPerSecond sustained requests with the given burst.
// A non-positive rate disables limiting.
func NewRateLimitedService(inner driven.EmbeddingService, requestsPerSecond float64, burst int) *RateLimitedService {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedService{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (s *RateLimitedService) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limiter: %w", err)
	}
	return nil
}

// Embed waits for a token, then calls through.
func (s *RateLimitedService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then calls through.
func (s *RateLimitedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.EmbedBatch(ctx, texts)
}

// Dimensions passes through to the wrapped service.
func (s *RateLimitedService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName passes through to the wrapped service.
func (s *RateLimitedService) ModelName() string {
	return s.inner.ModelName()
}

// Ping passes through without spending a token.
func (s *RateLimitedService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped service.
func (s *RateLimitedService) Close() error {
	return s.inner.Close()
}
