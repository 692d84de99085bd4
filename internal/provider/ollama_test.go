package provider

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama simulates the Ollama HTTP API for tests.
type fakeOllama struct {
	models     []string
	pullCalls  atomic.Int64
	embedCalls atomic.Int64
	embedding  []float64
}

func newFakeOllama(models ...string) *fakeOllama {
	return &fakeOllama{
		models:    models,
		embedding: []float64{3, 4}, // magnitude 5, easy to verify normalization
	}
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type model struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range f.models {
			resp.Models = append(resp.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		f.pullCalls.Add(1)
		var req struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.models = append(f.models, req.Name)
		_, _ = w.Write([]byte(`{"status":"pulling manifest"}` + "\n" + `{"status":"success"}` + "\n"))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		var req struct {
			Input any `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		count := 1
		if arr, ok := req.Input.([]any); ok {
			count = len(arr)
		}
		embeddings := make([][]float64, count)
		for i := range embeddings {
			embeddings[i] = f.embedding
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "a generated answer"})
	})
	return mux
}

func TestOllamaProvider_EmbedNormalizesVectors(t *testing.T) {
	// Given: an Ollama server returning an unnormalized embedding
	fake := newFakeOllama("nomic-embed-text")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	// When: I embed a text
	vec, err := p.Embed(context.Background(), "hello world")

	// Then: the vector has unit length
	require.NoError(t, err)
	require.Len(t, vec, 2)
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(mag), 0.001)
}

func TestOllamaProvider_PullsAbsentModel(t *testing.T) {
	// Given: an Ollama server that does not have the model yet
	fake := newFakeOllama()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	// When: I construct a provider with AutoPull
	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:     srv.URL,
		Model:    "nomic-embed-text",
		AutoPull: true,
	})

	// Then: the model is pulled exactly once
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, int64(1), fake.pullCalls.Load())
	assert.True(t, p.Available(context.Background()))
}

func TestOllamaProvider_NoAutoPull_FailsOnAbsentModel(t *testing.T) {
	fake := newFakeOllama()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})

	require.Error(t, err)
	assert.Equal(t, int64(0), fake.pullCalls.Load())
}

func TestOllamaProvider_SkipsPullWhenModelPresent(t *testing.T) {
	fake := newFakeOllama("nomic-embed-text:latest")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	// Base-name match against the tagged local model is enough.
	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:     srv.URL,
		Model:    "nomic-embed-text",
		AutoPull: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, int64(0), fake.pullCalls.Load())
}

func TestOllamaProvider_EmptyTextReturnsZeroVector(t *testing.T) {
	fake := newFakeOllama("nomic-embed-text")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	before := fake.embedCalls.Load()
	vec, err := p.Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Len(t, vec, p.Dimensions())
	assert.Equal(t, before, fake.embedCalls.Load(), "whitespace input should not hit the API")
}

func TestOllamaProvider_EmbedBatchPreservesOrder(t *testing.T) {
	fake := newFakeOllama("nomic-embed-text")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	results, err := p.EmbedBatch(context.Background(), []string{"one", "", "three"})

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Len(t, r, p.Dimensions(), "result %d", i)
	}
	// The empty slot stays a zero vector.
	assert.Equal(t, make([]float32, p.Dimensions()), results[1])
}

func TestOllamaProvider_Generate(t *testing.T) {
	fake := newFakeOllama("llama3.1:8b")
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "llama3.1:8b",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	answer, err := p.Generate(context.Background(), "say something")

	require.NoError(t, err)
	assert.Equal(t, "a generated answer", answer)
}

func TestOllamaProvider_UnreachableHost(t *testing.T) {
	_, err := NewOllamaProvider(context.Background(), OllamaConfig{
		Host:  "http://127.0.0.1:1",
		Model: "nomic-embed-text",
	})
	require.Error(t, err)
}
