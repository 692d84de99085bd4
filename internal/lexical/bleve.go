// Package lexical provides BM25 keyword search over a project's chunks.
//
// Indexes are ephemeral: built in memory from the chunk store and rebuilt
// whenever the chunk set changes, never incrementally maintained. A small
// LRU keeps recent snapshots so consecutive queries against an unchanged
// project skip the rebuild.
package lexical

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/docuquery/docuquery/internal/store"
)

// indexedChunk is the document shape handed to bleve.
type indexedChunk struct {
	Content string `json:"content"`
}

// Result is a single BM25 hit.
type Result struct {
	ChunkID string
	Score   float64
}

// Index is an in-memory BM25 index over one snapshot of a project's chunks.
// Borrowed snapshots are reference counted: Close marks the index for
// release, and the underlying bleve index is freed once the last borrower
// calls Release.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	refs   int
	closed bool
	freed  bool
}

// BuildIndex creates an in-memory index over the given chunks.
func BuildIndex(chunks []*store.Chunk) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, indexedChunk{Content: c.Content}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}

	return &Index{index: idx}, nil
}

// Search returns chunks matching the query, scored by BM25.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.freed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &Result{ChunkID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (i *Index) Count() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.freed {
		return 0, fmt.Errorf("index is closed")
	}
	n, err := i.index.DocCount()
	return int(n), err
}

// acquire takes a borrower reference. It fails once Close has been called.
func (i *Index) acquire() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return false
	}
	i.refs++
	return true
}

// Release returns a borrowed reference. The underlying index is freed when
// the snapshot has been closed and the last reference is gone.
func (i *Index) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.refs == 0 {
		return
	}
	i.refs--
	if i.closed && i.refs == 0 && !i.freed {
		i.freed = true
		_ = i.index.Close()
	}
}

// Close marks the index for release. The in-memory bleve index is freed
// immediately when no borrower holds a reference, otherwise by the last
// Release.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	if i.refs == 0 && !i.freed {
		i.freed = true
		return i.index.Close()
	}
	return nil
}
