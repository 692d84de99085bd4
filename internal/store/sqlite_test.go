package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore(filepath.Join(t.TempDir(), ChunksDBFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testChunk(docID, content string, position int) *Chunk {
	return &Chunk{
		ID:         uuid.NewString(),
		DocumentID: docID,
		ProjectID:  "project-1",
		Content:    content,
		Position:   position,
		Source:     "handbook.md",
	}
}

func TestChunkStore_AddAndGetAll(t *testing.T) {
	// Given: a fresh store
	s := newTestChunkStore(t)
	ctx := context.Background()

	chunks := []*Chunk{
		testChunk("doc-1", "first chunk", 0),
		testChunk("doc-1", "second chunk", 1),
		testChunk("doc-2", "other doc", 0),
	}

	// When: I add and read back all chunks
	require.NoError(t, s.Add(ctx, chunks))
	got, err := s.GetAll(ctx)

	// Then: all chunks come back ordered by document and position
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first chunk", got[0].Content)
	assert.Equal(t, "second chunk", got[1].Content)
	assert.Equal(t, "other doc", got[2].Content)
}

func TestChunkStore_DeleteByDocument_ReturnsRemovedIDs(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	c1 := testChunk("doc-1", "keep me", 0)
	c2 := testChunk("doc-2", "remove me", 0)
	c3 := testChunk("doc-2", "remove me too", 1)
	require.NoError(t, s.Add(ctx, []*Chunk{c1, c2, c3}))

	ids, err := s.DeleteByDocument(ctx, "doc-2")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c2.ID, c3.ID}, ids)

	remaining, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, c1.ID, remaining[0].ID)
}

func TestChunkStore_DeleteUnknownDocument_IsNoOp(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []*Chunk{testChunk("doc-1", "content", 0)}))

	ids, err := s.DeleteByDocument(ctx, "never-ingested")

	require.NoError(t, err)
	assert.Empty(t, ids)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunkStore_GetByIDs_SkipsMissing(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	c := testChunk("doc-1", "content", 0)
	require.NoError(t, s.Add(ctx, []*Chunk{c}))

	got, err := s.GetByIDs(ctx, []string{c.ID, "missing-id"})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "content", got[c.ID].Content)
}

func TestChunkStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ChunksDBFile)
	ctx := context.Background()

	s, err := NewChunkStore(path)
	require.NoError(t, err)
	c := testChunk("doc-1", "durable", 0)
	require.NoError(t, s.Add(ctx, []*Chunk{c}))
	require.NoError(t, s.Close())

	reopened, err := NewChunkStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "durable", got[0].Content)
}
