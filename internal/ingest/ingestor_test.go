package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/docuquery/docuquery/internal/errors"
	"github.com/docuquery/docuquery/internal/store"
)

// fakeEmbedder returns deterministic vectors without a backend.
type fakeEmbedder struct {
	dims  int
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dims)
	for i, r := range text {
		v[i%f.dims] += float32(r)
	}
	return v
}

func (f *fakeEmbedder) Dimensions() int                    { return f.dims }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

func newTestIngestor(t *testing.T) (*Ingestor, *store.Index) {
	t.Helper()
	idx, err := store.OpenIndex(t.TempDir(), "project-1", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ing := NewIngestor(newTestRegistry(), NewSplitter(50, 10), &fakeEmbedder{dims: 4})
	return ing, idx
}

func TestIngestor_IndexesChunksInOrder(t *testing.T) {
	// Given: a text document longer than one chunk window
	ing, idx := newTestIngestor(t)
	ctx := context.Background()
	text := strings.Repeat("the refund policy allows returns. ", 10)

	// When: I ingest it
	count, err := ing.Ingest(ctx, idx, "doc-1", "policy.txt", []byte(text), "text/plain")

	// Then: multiple chunks are indexed with sequential positions
	require.NoError(t, err)
	assert.Greater(t, count, 1)

	chunks, err := idx.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, count)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, "policy.txt", c.Source)
	}
}

func TestIngestor_EmptyDocumentFailsWithoutIndexing(t *testing.T) {
	ing, idx := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, idx, "doc-1", "empty.txt", []byte("   \n\t  "), "text/plain")

	require.Error(t, err)
	assert.Equal(t, qerr.ErrCodeEmptySource, qerr.GetCode(err))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestor_UnsupportedTypeFailsWithoutIndexing(t *testing.T) {
	ing, idx := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, idx, "doc-1", "image.png", []byte("binary"), "image/png")

	require.Error(t, err)
	assert.Equal(t, qerr.ErrCodeUnsupportedType, qerr.GetCode(err))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestor_HTMLContentIsStrippedBeforeChunking(t *testing.T) {
	ing, idx := newTestIngestor(t)
	ctx := context.Background()

	page := "<html><body><p>Plain policy text.</p></body></html>"
	count, err := ing.Ingest(ctx, idx, "doc-1", "page.html", []byte(page), "text/html")

	require.NoError(t, err)
	require.Equal(t, 1, count)

	chunks, err := idx.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Plain policy text.", chunks[0].Content)
}
