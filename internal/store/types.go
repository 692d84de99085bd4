// Package store persists per-project chunk data: chunk text and metadata in
// SQLite, embedding vectors in an HNSW graph. Each project gets its own
// directory under the data dir; a file lock guards it against concurrent
// writers from other processes.
package store

import (
	"context"
	"fmt"
	"time"
)

// Index file names inside a project directory.
const (
	ChunksDBFile    = "chunks.db"
	VectorIndexFile = "vectors.hnsw"
	LockFile        = "index.lock"
)

// Chunk is one retrievable unit of a document.
type Chunk struct {
	// ID is the chunk's UUID.
	ID string

	// DocumentID identifies the document this chunk was split from.
	DocumentID string

	// ProjectID scopes the chunk to a project corpus.
	ProjectID string

	// Content is the chunk text.
	Content string

	// Position is the chunk's ordinal within its document, starting at 0.
	Position int

	// Source describes where the document came from (file name or URL).
	Source string

	CreatedAt time.Time
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// VectorStore indexes embedding vectors for similarity search.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch is returned when vector dimensions don't match the
// store configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
