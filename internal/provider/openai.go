package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible provider. Host may point at
// any endpoint implementing the OpenAI REST shape (OpenAI itself, Azure
// proxies, vLLM, LiteLLM).
type OpenAIConfig struct {
	Host       string
	APIKey     string
	Model      string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	Dimensions int

	// SkipDimensionDetection suppresses the construction-time embedding
	// call. Generation models reject the embeddings endpoint, so the
	// generation-only path must set it.
	SkipDimensionDetection bool
}

// OpenAIProvider talks to an OpenAI-compatible HTTP API. It implements
// both EmbeddingProvider and GenerationProvider.
type OpenAIProvider struct {
	client *http.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var (
	_ EmbeddingProvider  = (*OpenAIProvider)(nil)
	_ GenerationProvider = (*OpenAIProvider)(nil)
)

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API. When
// cfg.Dimensions is zero the embedding dimension is detected with a single
// embedding call against the configured model.
func NewOpenAIProvider(ctx context.Context, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, qerr.New(qerr.ErrCodeConfigInvalid, "openai backend requires an API key", nil)
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.openai.com"
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	p := &OpenAIProvider{
		client: &http.Client{},
		config: cfg,
	}

	if p.config.Dimensions == 0 && !cfg.SkipDimensionDetection {
		dims, err := p.detectDimensions(ctx)
		if err != nil {
			p.client.CloseIdleConnections()
			return nil, err
		}
		p.config.Dimensions = dims
	}

	return p, nil
}

// detectDimensions embeds a short text to learn the model's dimension.
func (p *OpenAIProvider) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := p.doEmbedWithRetry(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, qerr.New(qerr.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.checkClosed(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, p.Dimensions()), nil
	}

	embeddings, err := p.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, qerr.New(qerr.ErrCodeEmbeddingFailed, "no embedding returned", nil)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batching requests.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.checkClosed(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := p.doEmbedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

func (p *OpenAIProvider) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		embeddings, err := p.doEmbed(timeoutCtx, texts)
		cancel()

		if err == nil {
			return embeddings, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, qerr.New(qerr.ErrCodeEmbeddingFailed,
		fmt.Sprintf("embedding failed after %d attempts", p.config.MaxRetries), lastErr)
}

func (p *OpenAIProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: p.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.post(ctx, "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResult openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// The API does not guarantee data ordering, reassemble by index.
	embeddings := make([][]float32, len(texts))
	for _, item := range apiResult.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		embedding := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			embedding[j] = float32(v)
		}
		embeddings[item.Index] = normalizeVector(embedding)
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}

// Generate produces a chat completion for the given prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.checkClosed(); err != nil {
		return "", err
	}

	body, err := json.Marshal(openAIChatRequest{
		Model: p.config.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.post(timeoutCtx, "/v1/chat/completions", body)
	if err != nil {
		return "", qerr.New(qerr.ErrCodeGenerationFailed, "generation request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", qerr.New(qerr.ErrCodeGenerationFailed,
			fmt.Sprintf("generation failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", qerr.New(qerr.ErrCodeGenerationFailed, "failed to decode generation response", err)
	}
	if len(result.Choices) == 0 {
		return "", qerr.New(qerr.ErrCodeGenerationFailed, "no completion choices returned", nil)
	}
	return result.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return p.client.Do(req)
}

// Dimensions returns the embedding dimension.
func (p *OpenAIProvider) Dimensions() int {
	return p.config.Dimensions
}

// ModelName returns the model identifier.
func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

// Available checks if the API endpoint responds with the configured key.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	if p.checkClosed() != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Host+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (p *OpenAIProvider) checkClosed() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// Close releases resources.
func (p *OpenAIProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.client.CloseIdleConnections()
	return nil
}
