package provider

import (
	"context"
	"fmt"

	"github.com/docuquery/docuquery/internal/config"
)

// NewEmbeddingProvider constructs the embedding provider selected by cfg and
// wraps it with LRU caching. The backend set is closed; config validation
// rejects anything outside it before we get here.
func NewEmbeddingProvider(ctx context.Context, cfg config.ProviderConfig) (EmbeddingProvider, error) {
	inner, err := newProvider(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedding(inner, DefaultEmbeddingCacheSize), nil
}

// NewGenerationProvider constructs the generation provider selected by cfg.
func NewGenerationProvider(ctx context.Context, cfg config.ProviderConfig) (GenerationProvider, error) {
	return newProvider(ctx, cfg, false)
}

// newProvider is the single construction switch on the backend enum. Both
// concrete providers implement embedding and generation, so the factory
// returns the widest type and the public constructors narrow it.
func newProvider(ctx context.Context, cfg config.ProviderConfig, forEmbedding bool) (interface {
	EmbeddingProvider
	GenerationProvider
}, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		return NewOllamaProvider(ctx, OllamaConfig{
			Host:     cfg.Host,
			Model:    cfg.Model,
			AutoPull: true,
		})
	case config.BackendOpenAI:
		return NewOpenAIProvider(ctx, OpenAIConfig{
			Host:                   cfg.Host,
			APIKey:                 cfg.APIKey,
			Model:                  cfg.Model,
			SkipDimensionDetection: !forEmbedding,
		})
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}
}
