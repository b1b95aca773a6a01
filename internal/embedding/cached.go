// Package embedding provides shared embedder plumbing on top of the concrete
// encoders in the subpackages.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"memberqa/internal/domain"
)

// DefaultCacheSize is the default number of embeddings kept in memory.
const DefaultCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache. Caching is sound
// because embedding is deterministic: identical text under the same encoder
// always maps to the same vector.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      *lru.Cache[string, []float32]
	generation atomic.Uint64
}

// NewCachedEmbedder creates a cached embedder wrapping the given encoder.
func NewCachedEmbedder(inner domain.Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Name returns the wrapped encoder's identifier.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Prepare delegates to the wrapped encoder and purges the cache, since a new
// preparation can change the vector space (the TF-IDF vocabulary does).
// Bumping the generation keys out any vector an in-flight Embed computed
// against the old model and stores after the purge.
func (c *CachedEmbedder) Prepare(ctx context.Context, corpus []string) error {
	if err := c.inner.Prepare(ctx, corpus); err != nil {
		return err
	}
	c.generation.Add(1)
	c.cache.Purge()
	return nil
}

// Dimension returns the wrapped encoder's dimensionality.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Embed returns the cached vector if available, otherwise computes and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// cacheKey hashes text together with the encoder name and the preparation
// generation, so neither two encoders nor two model generations collide in
// the same cache.
func (c *CachedEmbedder) cacheKey(text string) string {
	gen := strconv.FormatUint(c.generation.Load(), 10)
	h := sha256.Sum256([]byte(c.inner.Name() + "\x00" + gen + "\x00" + text))
	return hex.EncodeToString(h[:])
}
