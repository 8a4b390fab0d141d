package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

// DefaultCacheSize is the number of embeddings kept when no size is given.
const DefaultCacheSize = 4096

var (
	_ driven.EmbeddingService = (*CachedService)(nil)
	_ driven.TTLConfigurable  = (*CachedService)(nil)
)

// CachedService wraps an EmbeddingService with a size- and time-bounded LRU.
// Entries are keyed by model and text, so switching models never serves
// vectors from another embedding space.
type CachedService struct {
	inner driven.EmbeddingService

	mu    sync.RWMutex
	size  int
	ttl   time.Duration
	cache *expirable.LRU[string, []float32]
}

// NewCachedService wraps inner with a cache of the given size and TTL.
func NewCachedService(inner driven.EmbeddingService, size int, ttl time.Duration) (*CachedService, error) {
	if err := domain.ValidateCacheTTL(ttl); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachedService{
		inner: inner,
		size:  size,
		ttl:   ttl,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}, nil
}

func (c *CachedService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedService) lru() *expirable.LRU[string, []float32] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

// Embed returns a cached vector when present, otherwise calls through.
func (c *CachedService) Embed(ctx context.Context, text string) ([]float32, error) {
	cache := c.lru()
	key := c.cacheKey(text)

	if vec, ok := cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached texts from the cache and sends the rest in one call.
func (c *CachedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cache := c.lru()
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := cache.Get(keys[i]); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j >= len(vecs) {
			break
		}
		results[i] = vecs[j]
		cache.Add(keys[i], vecs[j])
	}
	return results, nil
}

// SetTTL changes the entry lifetime. Live entries are carried over and
// restart their lifetime under the new TTL.
func (c *CachedService) SetTTL(ttl time.Duration) error {
	if err := domain.ValidateCacheTTL(ttl); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := expirable.NewLRU[string, []float32](c.size, nil, ttl)
	for _, key := range c.cache.Keys() {
		if vec, ok := c.cache.Peek(key); ok {
			fresh.Add(key, vec)
		}
	}
	c.cache = fresh
	c.ttl = ttl
	return nil
}

// TTL returns the current entry lifetime.
func (c *CachedService) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

// Len returns the number of cached vectors.
func (c *CachedService) Len() int {
	return c.lru().Len()
}

// Dimensions passes through to the wrapped service.
func (c *CachedService) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName passes through to the wrapped service.
func (c *CachedService) ModelName() string {
	return c.inner.ModelName()
}

// Ping passes through to the wrapped service.
func (c *CachedService) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close purges the cache and closes the wrapped service.
func (c *CachedService) Close() error {
	c.lru().Purge()
	return c.inner.Close()
}
