package provider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedding is a test double that counts calls.
type mockEmbedding struct {
	embedCalls     atomic.Int64
	batchCalls     atomic.Int64
	dimensions     int
	modelName      string
	returnedVector []float32
}

func newMockEmbedding(dims int) *mockEmbedding {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}
	return &mockEmbedding{
		dimensions:     dims,
		modelName:      "mock-model",
		returnedVector: vec,
	}
}

func (m *mockEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.returnedVector, nil
}

func (m *mockEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.returnedVector
	}
	return result, nil
}

func (m *mockEmbedding) Dimensions() int                    { return m.dimensions }
func (m *mockEmbedding) ModelName() string                  { return m.modelName }
func (m *mockEmbedding) Available(ctx context.Context) bool { return true }
func (m *mockEmbedding) Close() error                       { return nil }

func TestCachedEmbedding_CacheHit_ReturnsWithoutCallingInner(t *testing.T) {
	// Given: a cached embedding provider
	inner := newMockEmbedding(768)
	cached := NewCachedEmbedding(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	text := "what is the refund policy for annual plans"

	// When: I embed the same text twice
	result1, err1 := cached.Embed(ctx, text)
	result2, err2 := cached.Embed(ctx, text)

	// Then: inner provider is called only once
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(1), inner.embedCalls.Load(), "inner should be called once")
	assert.Equal(t, result1, result2)
}

func TestCachedEmbedding_CacheMiss_CallsInnerForNewText(t *testing.T) {
	inner := newMockEmbedding(768)
	cached := NewCachedEmbedding(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	_, err1 := cached.Embed(ctx, "text one")
	_, err2 := cached.Embed(ctx, "text two")

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedding_EmbedBatch_OnlyEmbedsUncached(t *testing.T) {
	// Given: a cache warmed with one of the batch texts
	inner := newMockEmbedding(768)
	cached := NewCachedEmbedding(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	_, err := cached.Embed(ctx, "already cached")
	require.NoError(t, err)

	// When: I batch-embed a mix of cached and new texts
	results, err := cached.EmbedBatch(ctx, []string{"already cached", "brand new"})

	// Then: only one batch call is made and all slots are filled
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	for i, r := range results {
		assert.NotNil(t, r, "result %d should be populated", i)
	}
}

func TestCachedEmbedding_EmbedBatch_AllCachedSkipsInner(t *testing.T) {
	inner := newMockEmbedding(768)
	cached := NewCachedEmbedding(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	texts := []string{"alpha", "beta"}
	_, err := cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.batchCalls.Load(), "second batch should be fully cached")
}

func TestCachedEmbedding_Passthrough(t *testing.T) {
	inner := newMockEmbedding(512)
	cached := NewCachedEmbedding(inner, 100)
	defer func() { _ = cached.Close() }()

	assert.Equal(t, 512, cached.Dimensions())
	assert.Equal(t, "mock-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
