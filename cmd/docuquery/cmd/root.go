// Package cmd provides the CLI commands for docuquery.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docuquery/docuquery/internal/cache"
	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/ingest"
	"github.com/docuquery/docuquery/internal/lexical"
	"github.com/docuquery/docuquery/internal/logging"
	"github.com/docuquery/docuquery/internal/provider"
	"github.com/docuquery/docuquery/internal/rag"
	"github.com/docuquery/docuquery/internal/search"
	"github.com/docuquery/docuquery/internal/store"
)

var (
	cfgPath   string
	debugMode bool
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command for the docuquery CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docuquery",
		Short: "Question answering over your documents with cited sources",
		Long: `DocuQuery ingests documents into per-project indexes and answers
questions grounded in them, citing the passages each answer came from.

Retrieval is hybrid: BM25 keyword search and embedding similarity are
fused into one ranking. Answers are cached per project and the cache is
invalidated whenever the project's documents change.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

// app wires configuration, providers, stores, and the orchestrator for one
// command invocation.
type app struct {
	cfg       *config.Config
	svc       *rag.Service
	indexes   *store.Manager
	statuses  *rag.SQLiteStatusStore
	results   *cache.ResultCache
	embedder  provider.EmbeddingProvider
	generator provider.GenerationProvider

	logCleanup func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logCleanup: logCleanup}

	a.embedder, err = provider.NewEmbeddingProvider(ctx, cfg.Providers.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.generator, err = provider.NewGenerationProvider(ctx, cfg.Providers.Generation)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.indexes = store.NewManager(cfg.Paths.DataDir, a.embedder.Dimensions())
	a.statuses, err = rag.NewStatusStore(filepath.Join(cfg.Paths.DataDir, "documents.db"))
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Cache.Enabled {
		a.results = cache.New(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
	}

	ingestor := ingest.NewIngestor(
		ingest.NewRegistry(ingest.NewPDFLoader()),
		ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		a.embedder,
	)

	a.svc = rag.NewService(cfg, rag.Deps{
		Indexes:  a.indexes,
		Statuses: a.statuses,
		Ingestor: ingestor,
		Expander: search.NewExpander(a.generator),
		Retriever: search.NewRetriever(a.embedder, lexical.NewCache(0), search.Config{
			LexicalK: cfg.Search.LexicalK,
			DenseK:   cfg.Search.DenseK,
			TopN:     cfg.Search.TopN,
			Weights: search.Weights{
				Lexical: cfg.Search.LexicalWeight,
				Dense:   cfg.Search.DenseWeight,
			},
		}),
		Generator: a.generator,
		Results:   a.results,
	})
	return a, nil
}

// Close releases every resource the app holds.
func (a *app) Close() {
	if a.indexes != nil {
		_ = a.indexes.Close()
	}
	if a.statuses != nil {
		_ = a.statuses.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.generator != nil {
		_ = a.generator.Close()
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}
