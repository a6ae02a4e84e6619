package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/knowdisk/knowdisk/pkg/capability"
)

// DefaultCacheSize caps the number of unique embeddings kept in memory.
const DefaultCacheSize = 1000

// CachedEmbedder decorates a capability.Embedder with an LRU cache keyed by
// text content, avoiding redundant embedding calls for repeated chunk text
// or queries (a chunk re-embedded after an unrelated sibling chunk changes,
// or the same query issued twice).
type CachedEmbedder struct {
	inner capability.Embedder
	cache *lru.Cache[string, []float32]
}

var _ capability.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU cache of the given size. A
// non-positive size falls back to DefaultCacheSize.
func NewCachedEmbedder(inner capability.Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached vector for text if present, otherwise computes
// and caches it.
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

// Dimensions passes through to the wrapped embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}
