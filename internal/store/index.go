package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// Index is a project's combined chunk and vector store. The SQLite chunk
// table is the source of truth; the HNSW graph is kept in step with it and
// persisted after every mutation.
type Index struct {
	projectID string
	dir       string
	chunks    *ChunkStore
	vectors   VectorStore
	lock      *flock.Flock

	// generation increments on every mutation. Derived in-memory indexes
	// (the lexical snapshot cache) key on it to detect staleness.
	generation atomic.Int64

	mu     sync.Mutex
	closed bool
}

// SearchResult pairs a chunk with its similarity score.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// OpenIndex opens (creating if needed) the index for a project under
// dataDir. An exclusive file lock guards the project directory; a second
// process opening the same project fails fast.
func OpenIndex(dataDir, projectID string, dims int) (*Index, error) {
	dir := filepath.Join(dataDir, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("project %s index is locked by another process", projectID)
	}

	chunks, err := NewChunkStore(filepath.Join(dir, ChunksDBFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	vectors, err := NewHNSWStore(VectorStoreConfig{Dimensions: dims})
	if err != nil {
		_ = lock.Unlock()
		_ = chunks.Close()
		return nil, err
	}

	vectorPath := filepath.Join(dir, VectorIndexFile)
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			_ = lock.Unlock()
			_ = chunks.Close()
			return nil, qerr.New(qerr.ErrCodeIndexCorrupt,
				fmt.Sprintf("failed to load vector index for project %s", projectID), err)
		}
	}

	idx := &Index{
		projectID: projectID,
		dir:       dir,
		chunks:    chunks,
		vectors:   vectors,
		lock:      lock,
	}
	idx.generation.Store(1)
	return idx, nil
}

// ProjectID returns the owning project.
func (i *Index) ProjectID() string {
	return i.projectID
}

// Generation returns a counter that changes whenever the chunk set changes.
func (i *Index) Generation() int64 {
	return i.generation.Load()
}

// Add stores chunks with their embedding vectors and persists the vector
// graph.
func (i *Index) Add(ctx context.Context, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return fmt.Errorf("index is closed")
	}

	if err := i.chunks.Add(ctx, chunks); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	for j, c := range chunks {
		ids[j] = c.ID
	}
	if err := i.vectors.Add(ctx, ids, vectors); err != nil {
		// Roll the chunk rows back so a failed add leaves nothing behind
		// for lexical rebuilds or the empty-corpus check to pick up.
		if delErr := i.chunks.DeleteByIDs(ctx, ids); delErr != nil {
			slog.Error("failed to roll back chunks after vector failure",
				"project_id", i.projectID, "error", delErr)
		}
		return qerr.IndexMutationError("failed to add vectors", err)
	}

	if err := i.saveVectors(); err != nil {
		return err
	}
	i.generation.Add(1)
	return nil
}

// Search returns the k chunks nearest to the query vector.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]*SearchResult, error) {
	hits, err := i.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]string, len(hits))
	for j, h := range hits {
		ids[j] = h.ID
	}
	byID, err := i.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*SearchResult, 0, len(hits))
	for _, h := range hits {
		chunk, ok := byID[h.ID]
		if !ok {
			continue
		}
		results = append(results, &SearchResult{Chunk: chunk, Score: h.Score})
	}
	return results, nil
}

// DeleteDocument removes a document's chunks from both stores. Deleting a
// document that is not indexed is a no-op.
func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return fmt.Errorf("index is closed")
	}

	ids, err := i.chunks.DeleteByDocument(ctx, documentID)
	if err != nil {
		return qerr.IndexMutationError("failed to delete document chunks", err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := i.vectors.Delete(ctx, ids); err != nil {
		// Chunk rows are gone but vectors remain, the index is inconsistent.
		return qerr.IndexMutationError("failed to delete document vectors", err).
			WithDetail("document_id", documentID)
	}

	if err := i.saveVectors(); err != nil {
		return err
	}
	i.generation.Add(1)
	return nil
}

// Clear removes every chunk and vector in the project.
func (i *Index) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return fmt.Errorf("index is closed")
	}

	all, err := i.chunks.GetAll(ctx)
	if err != nil {
		return err
	}
	if err := i.chunks.DeleteAll(ctx); err != nil {
		return qerr.IndexMutationError("failed to clear chunks", err)
	}

	ids := make([]string, len(all))
	for j, c := range all {
		ids[j] = c.ID
	}
	if err := i.vectors.Delete(ctx, ids); err != nil {
		return qerr.IndexMutationError("failed to clear vectors", err)
	}

	if err := i.saveVectors(); err != nil {
		return err
	}
	i.generation.Add(1)
	return nil
}

// GetChunks resolves chunk IDs to chunks. Unknown IDs are skipped.
func (i *Index) GetChunks(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	return i.chunks.GetByIDs(ctx, ids)
}

// GetAll returns every chunk in the project.
func (i *Index) GetAll(ctx context.Context) ([]*Chunk, error) {
	return i.chunks.GetAll(ctx)
}

// Count returns the number of indexed chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	return i.chunks.Count(ctx)
}

func (i *Index) saveVectors() error {
	if err := i.vectors.Save(filepath.Join(i.dir, VectorIndexFile)); err != nil {
		return qerr.IndexMutationError("failed to persist vector index", err)
	}
	return nil
}

// Close persists state and releases the project lock.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	var firstErr error
	if err := i.chunks.Close(); err != nil {
		firstErr = err
	}
	if err := i.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := i.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Manager opens and caches per-project indexes.
type Manager struct {
	dataDir string
	dims    int

	mu      sync.Mutex
	indexes map[string]*Index
}

// NewManager creates an index manager rooted at dataDir. dims is the
// embedding dimension shared by all projects.
func NewManager(dataDir string, dims int) *Manager {
	return &Manager{
		dataDir: dataDir,
		dims:    dims,
		indexes: make(map[string]*Index),
	}
}

// Get returns the project's index, opening it on first use.
func (m *Manager) Get(projectID string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.indexes[projectID]; ok {
		return idx, nil
	}

	idx, err := OpenIndex(m.dataDir, projectID, m.dims)
	if err != nil {
		return nil, err
	}
	m.indexes[projectID] = idx
	return idx, nil
}

// Close closes every open index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, idx := range m.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", id, err)
		}
		delete(m.indexes, id)
	}
	return firstErr
}
