package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOpenAI(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		// Return data in reverse order to exercise index reassembly.
		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float64{float64(i + 1), 0}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "chat answer"}},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(context.Background(), OpenAIConfig{Model: "text-embedding-3-small"})
	require.Error(t, err)
}

func TestOpenAIProvider_DetectsEmbeddingDimension(t *testing.T) {
	// Given: a model whose vectors are wider than the default dimension
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		var data []item
		for i := range req.Input {
			vec := make([]float64, 1536)
			vec[0] = 1
			data = append(data, item{Index: i, Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:   srv.URL,
		APIKey: "sk-test",
		Model:  "text-embedding-3-small",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	// Then: the reported dimension matches what the model actually returns
	assert.Equal(t, 1536, p.Dimensions())

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, p.Dimensions())
}

func TestOpenAIProvider_ExplicitDimensionsSkipDetection(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:       srv.URL,
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 256,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	assert.Equal(t, 256, p.Dimensions())
	assert.Zero(t, hits)
}

func TestOpenAIProvider_DetectionFailureFailsConstruction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:       srv.URL,
		APIKey:     "sk-wrong",
		Model:      "text-embedding-3-small",
		MaxRetries: 1,
	})
	require.Error(t, err)
}

func TestOpenAIProvider_EmbedBatchReassemblesByIndex(t *testing.T) {
	// Given: a server responding with out-of-order embedding data
	srv := newFakeOpenAI(t, "sk-test")
	defer srv.Close()

	p, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:   srv.URL,
		APIKey: "sk-test",
		Model:  "text-embedding-3-small",
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, 2, p.Dimensions())

	// When: I batch-embed three texts
	results, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	// Then: results line up with input order despite response ordering
	require.NoError(t, err)
	require.Len(t, results, 3)
	// Input i maps to vector [i+1, 0], normalized to [1, 0].
	for i, r := range results {
		require.Len(t, r, 2, "result %d", i)
		assert.InDelta(t, 1.0, float64(r[0]), 0.001)
		assert.InDelta(t, 0.0, float64(r[1]), 0.001)
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	srv := newFakeOpenAI(t, "sk-test")
	defer srv.Close()

	p, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:                   srv.URL,
		APIKey:                 "sk-test",
		Model:                  "gpt-4o-mini",
		SkipDimensionDetection: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	answer, err := p.Generate(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "chat answer", answer)
}

func TestOpenAIProvider_BadKeyFailsGeneration(t *testing.T) {
	srv := newFakeOpenAI(t, "sk-test")
	defer srv.Close()

	p, err := NewOpenAIProvider(context.Background(), OpenAIConfig{
		Host:                   srv.URL,
		APIKey:                 "sk-wrong",
		Model:                  "gpt-4o-mini",
		SkipDimensionDetection: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Generate(context.Background(), "hello")
	require.Error(t, err)
}
