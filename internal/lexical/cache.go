package lexical

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docuquery/docuquery/internal/store"
)

// DefaultCacheSize is the default number of index snapshots to keep.
const DefaultCacheSize = 8

// Cache keeps recently built index snapshots keyed by project and store
// generation. A mutation bumps the generation, so the stale snapshot simply
// stops being looked up and ages out of the LRU.
type Cache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Index]
}

// NewCache creates a snapshot cache. Evicted snapshots are closed.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.NewWithEvict[string, *Index](size, func(_ string, idx *Index) {
		_ = idx.Close()
	})
	return &Cache{cache: cache}
}

// Get returns a BM25 index over the project's current chunk set, building
// one when no snapshot matches the store generation. The returned snapshot
// is borrowed: callers must Release it when done so an eviction racing a
// search cannot free the index out from under the searcher.
func (c *Cache) Get(ctx context.Context, projectIndex *store.Index) (*Index, error) {
	key := fmt.Sprintf("%s:%d", projectIndex.ProjectID(), projectIndex.Generation())

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.cache.Get(key); ok && idx.acquire() {
		return idx, nil
	}

	chunks, err := projectIndex.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := BuildIndex(chunks)
	if err != nil {
		return nil, err
	}
	idx.acquire()
	c.cache.Add(key, idx)
	return idx, nil
}

// Close drops every cached snapshot.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
