package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	Host       string
	Model      string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	Dimensions int

	// AutoPull pulls the model when it is not present locally.
	AutoPull bool

	// SkipHealthCheck bypasses model discovery at construction (testing).
	SkipHealthCheck bool
}

// OllamaProvider talks to a local Ollama instance over its HTTP API.
// It implements both EmbeddingProvider and GenerationProvider.
type OllamaProvider struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var (
	_ EmbeddingProvider  = (*OllamaProvider)(nil)
	_ GenerationProvider = (*OllamaProvider)(nil)
)

type ollamaModelInfo struct {
	Name string `json:"name"`
}

type ollamaTagsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// NewOllamaProvider creates a provider connected to the configured Ollama
// host. Unless SkipHealthCheck is set it verifies the model is present,
// pulling it when AutoPull is enabled, and auto-detects embedding dimensions.
func NewOllamaProvider(ctx context.Context, cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	p := &OllamaProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := p.ensureModel(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		if p.dims == 0 {
			dims, err := p.detectDimensions(ctx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, err
			}
			p.dims = dims
		}
	}

	if p.dims == 0 {
		p.dims = DefaultDimensions
	}

	return p, nil
}

// listModels gets available models from Ollama.
func (p *OllamaProvider) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, qerr.ProviderUnavailable("failed to connect to Ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, qerr.ProviderUnavailable("Ollama returned unexpected status",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Models, nil
}

// hasModel reports whether the configured model is present locally. Both
// the exact name and the base name without tag are accepted.
func (p *OllamaProvider) hasModel(ctx context.Context) (bool, error) {
	models, err := p.listModels(ctx)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(p.modelName)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// ensureModel verifies the model exists, pulling it when AutoPull is set.
func (p *OllamaProvider) ensureModel(ctx context.Context) error {
	has, err := p.hasModel(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	if !p.config.AutoPull {
		return qerr.ProviderUnavailable(
			fmt.Sprintf("model %q is not available", p.modelName), nil)
	}

	slog.Info("pulling model", slog.String("model", p.modelName))
	pullCtx, cancel := context.WithTimeout(ctx, PullTimeout)
	defer cancel()
	if err := p.pullModel(pullCtx); err != nil {
		return qerr.New(qerr.ErrCodeModelPullFailed,
			fmt.Sprintf("failed to pull model %q", p.modelName), err)
	}
	return nil
}

// pullModel streams a model pull from the Ollama registry.
func (p *OllamaProvider) pullModel(ctx context.Context) error {
	reqBody := struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: p.modelName, Stream: true}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout here, the stream lasts as long as the download.
	pullClient := &http.Client{Transport: p.transport}
	resp, err := pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var progress struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &progress); err != nil {
			continue
		}
		if progress.Error != "" {
			return fmt.Errorf("pull error: %s", progress.Error)
		}
		slog.Debug("pull progress", slog.String("status", progress.Status))
	}
	return scanner.Err()
}

// detectDimensions embeds a short text to learn the model's dimension.
func (p *OllamaProvider) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := p.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, qerr.Wrap(qerr.ErrCodeEmbeddingFailed, err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, qerr.New(qerr.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	return len(embeddings[0]), nil
}

// Embed generates an embedding for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.checkClosed(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, p.dims), nil
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
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.checkClosed(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, p.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += p.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + p.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := p.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// doEmbedWithRetry retries transient embedding failures with exponential backoff.
func (p *OllamaProvider) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
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

// doEmbed performs a single batch embedding request.
func (p *OllamaProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
	}
	return embeddings, nil
}

// Generate produces a completion for the given prompt.
func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.checkClosed(); err != nil {
		return "", err
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, p.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", qerr.New(qerr.ErrCodeGenerationFailed, "generation request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", qerr.New(qerr.ErrCodeGenerationFailed,
			fmt.Sprintf("generation failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", qerr.New(qerr.ErrCodeGenerationFailed, "failed to decode generation response", err)
	}
	return result.Response, nil
}

// Dimensions returns the embedding dimension.
func (p *OllamaProvider) Dimensions() int {
	return p.dims
}

// ModelName returns the model identifier.
func (p *OllamaProvider) ModelName() string {
	return p.modelName
}

// Available checks if Ollama is running and the model is present.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	if p.checkClosed() != nil {
		return false
	}
	has, err := p.hasModel(ctx)
	return err == nil && has
}

func (p *OllamaProvider) checkClosed() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	return nil
}

// Close releases resources.
func (p *OllamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
