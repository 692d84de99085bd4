package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings to keep.
// At 768 dimensions * 4 bytes * 1000 entries that is roughly 3MB.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedding wraps an EmbeddingProvider with LRU caching so repeated
// texts skip the backend round trip.
type CachedEmbedding struct {
	inner EmbeddingProvider
	cache *lru.Cache[string, []float32]
}

var _ EmbeddingProvider = (*CachedEmbedding)(nil)

// NewCachedEmbedding creates a cached embedding provider wrapping inner.
func NewCachedEmbedding(inner EmbeddingProvider, cacheSize int) *CachedEmbedding {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedding{
		inner: inner,
		cache: cache,
	}
}

// cacheKey keys on both text and model so a model swap never serves
// stale vectors.
func (c *CachedEmbedding) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns a cached embedding if available, otherwise computes and caches.
func (c *CachedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
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

// EmbedBatch embeds multiple texts, consulting the cache per text.
func (c *CachedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	newEmbeddings, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = newEmbeddings[j]
		c.cache.Add(c.cacheKey(texts[idx]), newEmbeddings[j])
	}

	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedding) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedEmbedding) ModelName() string {
	return c.inner.ModelName()
}

// Available checks if the provider is ready (passthrough to inner).
func (c *CachedEmbedding) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner provider.
func (c *CachedEmbedding) Close() error {
	return c.inner.Close()
}
