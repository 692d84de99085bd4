// Package config loads and validates docuquery configuration.
//
// Configuration precedence, lowest to highest:
//  1. Built-in defaults (NewConfig)
//  2. YAML config file
//  3. Environment variables (DOCUQUERY_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderBackend selects a provider variant. The set is closed: the
// factory in internal/provider switches on it exactly once at construction.
type ProviderBackend string

const (
	BackendOllama ProviderBackend = "ollama"
	BackendOpenAI ProviderBackend = "openai"
)

// Config represents the complete docuquery configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Query     QueryConfig     `yaml:"query" json:"query"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds per-project index data (one subdirectory per project).
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ProvidersConfig selects and configures the embedding and generation
// backends.
type ProvidersConfig struct {
	Embedding  ProviderConfig `yaml:"embedding" json:"embedding"`
	Generation ProviderConfig `yaml:"generation" json:"generation"`
}

// ProviderConfig configures a single provider variant.
type ProviderConfig struct {
	// Backend is "ollama" (locally hosted) or "openai" (cloud hosted,
	// OpenAI-compatible API).
	Backend ProviderBackend `yaml:"backend" json:"backend"`
	// Model is the model identifier, e.g. "nomic-embed-text" or
	// "text-embedding-3-small".
	Model string `yaml:"model" json:"model"`
	// Host is the API base URL. Defaults depend on the backend.
	Host string `yaml:"host" json:"host"`
	// APIKey authenticates against cloud backends. Ignored for ollama.
	APIKey string `yaml:"api_key" json:"api_key"`
}

// IngestConfig configures chunking and ingestion behavior.
type IngestConfig struct {
	// ChunkSize is the chunk window in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// AllowRequeue permits ingesting the same source again after a Failed
	// document. The retry always creates a new document identity; terminal
	// statuses are never revived.
	AllowRequeue bool `yaml:"allow_requeue" json:"allow_requeue"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// LexicalK is the top-k fetched from the BM25 index.
	LexicalK int `yaml:"lexical_k" json:"lexical_k"`
	// DenseK is the top-k fetched from the vector index.
	DenseK int `yaml:"dense_k" json:"dense_k"`
	// TopN is the final fused result count.
	TopN int `yaml:"top_n" json:"top_n"`
	// LexicalWeight and DenseWeight control score fusion. Must sum to 1.0.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	DenseWeight   float64 `yaml:"dense_weight" json:"dense_weight"`
}

// CacheConfig configures the Redis result cache.
type CacheConfig struct {
	// Enabled turns result caching on. When false, every query recomputes.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Addr is the Redis host:port.
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// TTL bounds cache entry lifetime.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// StorageConfig configures the MinIO object storage collaborator.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// QueryConfig configures query-path behavior.
type QueryConfig struct {
	// StrictGeneration propagates generation-provider failures as hard
	// errors instead of degrading to a textual answer.
	StrictGeneration bool `yaml:"strict_generation" json:"strict_generation"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Providers: ProvidersConfig{
			Embedding: ProviderConfig{
				Backend: BackendOllama,
				Model:   "nomic-embed-text",
				Host:    "http://localhost:11434",
			},
			Generation: ProviderConfig{
				Backend: BackendOllama,
				Model:   "llama3.1:8b",
				Host:    "http://localhost:11434",
			},
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Search: SearchConfig{
			LexicalK:      5,
			DenseK:        5,
			TopN:          7,
			LexicalWeight: 0.5,
			DenseWeight:   0.5,
		},
		Cache: CacheConfig{
			Enabled: true,
			Addr:    "localhost:6379",
			TTL:     time.Hour,
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "documents",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docuquery")
	}
	return filepath.Join(home, ".docuquery")
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result. An empty path loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML reads and merges a YAML config file into the receiver.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DOCUQUERY_* environment variables. Env vars
// have the highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCUQUERY_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCUQUERY_EMBEDDING_BACKEND"); v != "" {
		c.Providers.Embedding.Backend = ProviderBackend(v)
	}
	if v := os.Getenv("DOCUQUERY_EMBEDDING_MODEL"); v != "" {
		c.Providers.Embedding.Model = v
	}
	if v := os.Getenv("DOCUQUERY_EMBEDDING_HOST"); v != "" {
		c.Providers.Embedding.Host = v
	}
	if v := os.Getenv("DOCUQUERY_EMBEDDING_API_KEY"); v != "" {
		c.Providers.Embedding.APIKey = v
	}
	if v := os.Getenv("DOCUQUERY_GENERATION_BACKEND"); v != "" {
		c.Providers.Generation.Backend = ProviderBackend(v)
	}
	if v := os.Getenv("DOCUQUERY_GENERATION_MODEL"); v != "" {
		c.Providers.Generation.Model = v
	}
	if v := os.Getenv("DOCUQUERY_GENERATION_HOST"); v != "" {
		c.Providers.Generation.Host = v
	}
	if v := os.Getenv("DOCUQUERY_GENERATION_API_KEY"); v != "" {
		c.Providers.Generation.APIKey = v
	}
	if v := os.Getenv("DOCUQUERY_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("DOCUQUERY_REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("DOCUQUERY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("DOCUQUERY_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.ChunkSize = n
		}
	}
	if v := os.Getenv("DOCUQUERY_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.ChunkOverlap = n
		}
	}
	if v := os.Getenv("DOCUQUERY_MINIO_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("DOCUQUERY_MINIO_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv("DOCUQUERY_MINIO_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("DOCUQUERY_MINIO_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("DOCUQUERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Providers.Embedding.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("unknown embedding backend %q", c.Providers.Embedding.Backend)
	}
	switch c.Providers.Generation.Backend {
	case BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("unknown generation backend %q", c.Providers.Generation.Backend)
	}

	if c.Providers.Embedding.Backend == BackendOpenAI && c.Providers.Embedding.APIKey == "" {
		return fmt.Errorf("embedding backend %q requires an API key", BackendOpenAI)
	}
	if c.Providers.Generation.Backend == BackendOpenAI && c.Providers.Generation.APIKey == "" {
		return fmt.Errorf("generation backend %q requires an API key", BackendOpenAI)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must be non-negative, got %d", c.Ingest.ChunkOverlap)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}

	if c.Search.LexicalK <= 0 || c.Search.DenseK <= 0 || c.Search.TopN <= 0 {
		return fmt.Errorf("search k values must be positive")
	}
	sum := c.Search.LexicalWeight + c.Search.DenseWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %.3f", sum)
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when caching is enabled")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
