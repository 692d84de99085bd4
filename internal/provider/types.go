// Package provider abstracts the embedding and generation model backends.
//
// Two implementations exist: Ollama (locally hosted) and an OpenAI-compatible
// HTTP API (cloud hosted). Callers construct providers through the factory in
// factory.go and interact only through the interfaces below; no caller
// branches on the backend after construction.
package provider

import (
	"context"
	"math"
	"time"
)

// Common provider constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding or generation request.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient failures.
	DefaultMaxRetries = 3

	// PullTimeout bounds an Ollama model pull. Large models take a while.
	PullTimeout = 10 * time.Minute

	// DefaultDimensions is used when dimension auto-detection is skipped.
	DefaultDimensions = 768
)

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the provider is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// GenerationProvider produces text completions.
type GenerationProvider interface {
	// Generate produces a completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
