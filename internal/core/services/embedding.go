package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
	"github.com/custodia-labs/shopground/internal/logger"
)

// RetryConfig configures retries of transient embedding failures.
type RetryConfig struct {
	MaxRetries   int           // Retry attempts after the first call
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Growth factor between delays
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// embeddingResolver turns chunk text into vectors, cheapest source first:
// a vector already stored for the same hash and model, then the embedding
// service with bounded retries.
type embeddingResolver struct {
	store    driven.KnowledgeStore
	service  driven.EmbeddingService
	retry    RetryConfig
	requests atomic.Int64
}

func newEmbeddingResolver(store driven.KnowledgeStore, service driven.EmbeddingService, retry RetryConfig) *embeddingResolver {
	return &embeddingResolver{store: store, service: service, retry: retry}
}

// model returns the embedding model name, empty when no service is configured.
func (r *embeddingResolver) model() string {
	if r.service == nil {
		return ""
	}
	return r.service.ModelName()
}

// resolve returns the embedding for text with the given hash.
// Returns nil without error when no embedding service is configured.
func (r *embeddingResolver) resolve(ctx context.Context, text, chunkHash string) ([]float32, error) {
	if r.service == nil {
		return nil, nil
	}

	model := r.service.ModelName()
	vec, err := r.store.FindEmbedding(ctx, chunkHash, model)
	if err == nil && len(vec) > 0 {
		return vec, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Debug("embedding lookup for %s failed: %v", chunkHash, err)
	}

	return r.embed(ctx, text)
}

// embed calls the service, retrying transient failures with exponential backoff.
func (r *embeddingResolver) embed(ctx context.Context, text string) ([]float32, error) {
	policy := &retryAfterBackOff{next: r.newBackOff()}
	var bo backoff.BackOff = backoff.WithMaxRetries(policy, uint64(max(r.retry.MaxRetries, 0)))
	bo = backoff.WithContext(bo, ctx)

	var vec []float32
	op := func() error {
		r.requests.Add(1)
		v, err := r.service.Embed(ctx, text)
		if err == nil {
			vec = v
			return nil
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		var tse *domain.TransientServiceError
		if errors.As(err, &tse) {
			policy.hint = tse.RetryAfter
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("embedding failed, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, fmt.Errorf("embed chunk: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed chunk: %w: empty vector", domain.ErrEmbeddingUnavailable)
	}
	return vec, nil
}

func (r *embeddingResolver) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.retry.InitialDelay > 0 {
		b.InitialInterval = r.retry.InitialDelay
	}
	if r.retry.MaxDelay > 0 {
		b.MaxInterval = r.retry.MaxDelay
	}
	if r.retry.Multiplier > 0 {
		b.Multiplier = r.retry.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Requests returns the number of embedding service calls made.
func (r *embeddingResolver) Requests() int {
	return int(r.requests.Load())
}

// retryAfterBackOff waits at least as long as the server asked for.
type retryAfterBackOff struct {
	next backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.hint > d {
		d = b.hint
	}
	b.hint = 0
	return d
}

func (b *retryAfterBackOff) Reset() {
	b.hint = 0
	b.next.Reset()
}
