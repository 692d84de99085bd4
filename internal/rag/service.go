package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docuquery/docuquery/internal/cache"
	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/ingest"
	"github.com/docuquery/docuquery/internal/provider"
	"github.com/docuquery/docuquery/internal/search"
	"github.com/docuquery/docuquery/internal/store"
)

// Source is one cited chunk in an answer.
type Source struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Answer is the result of a query: generated text plus the chunks it was
// grounded in.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Indexes   *store.Manager
	Statuses  StatusStore
	Ingestor  *ingest.Ingestor
	Expander  *search.Expander
	Retriever *search.Retriever
	Generator provider.GenerationProvider
	Results   *cache.ResultCache // nil disables result caching
}

// Service is the orchestrator behind the two public operations, ingest and
// query.
type Service struct {
	cfg  *config.Config
	deps Deps
}

// NewService creates the orchestrator.
func NewService(cfg *config.Config, deps Deps) *Service {
	return &Service{cfg: cfg, deps: deps}
}

// RegisterDocument records a new document in the Pending state. Ingestion
// happens separately, usually on a background worker.
func (s *Service) RegisterDocument(ctx context.Context, projectID, source string) (*Document, error) {
	return s.deps.Statuses.Create(ctx, projectID, source)
}

// Ingest processes one registered document: Pending -> Processing, then
// load, split, embed, and index its content, then Completed on success or
// Failed with the reason on any error. Either outcome invalidates the
// project's cached query results.
func (s *Service) Ingest(ctx context.Context, doc *Document, data []byte, contentType string) error {
	if err := s.deps.Statuses.Transition(ctx, doc.ID, StatusProcessing, ""); err != nil {
		return err
	}

	if err := s.ingestDocument(ctx, doc, data, contentType); err != nil {
		if terr := s.deps.Statuses.Transition(ctx, doc.ID, StatusFailed, err.Error()); terr != nil {
			slog.Error("failed to record document failure",
				slog.String("document_id", doc.ID),
				slog.String("error", terr.Error()))
		}
		slog.Error("document ingestion failed",
			slog.String("project_id", doc.ProjectID),
			slog.String("document_id", doc.ID),
			slog.String("source", doc.Source),
			slog.String("error", err.Error()))
		// A failed ingestion may still have touched the index before the
		// error, so the project cache is dropped either way.
		s.invalidate(ctx, doc.ProjectID)
		return err
	}

	if err := s.deps.Statuses.Transition(ctx, doc.ID, StatusCompleted, ""); err != nil {
		return err
	}
	s.invalidate(ctx, doc.ProjectID)
	return nil
}

func (s *Service) ingestDocument(ctx context.Context, doc *Document, data []byte, contentType string) error {
	idx, err := s.deps.Indexes.Get(doc.ProjectID)
	if err != nil {
		return err
	}
	_, err = s.deps.Ingestor.Ingest(ctx, idx, doc.ID, doc.Source, data, contentType)
	return err
}

// Query answers a question against a project's corpus.
//
// Pipeline: cache lookup, corpus-emptiness check, hypothetical-answer
// expansion, hybrid retrieval, grounded generation, cache write. A cache
// hit returns without touching retrieval or providers. An empty corpus
// returns a fixed sentinel without any provider call. When generation
// fails, the retrieved passages are returned verbatim instead unless
// strict generation is configured.
func (s *Service) Query(ctx context.Context, projectID, question string) (*Answer, error) {
	normalized := cache.NormalizeQuery(question)
	if normalized == "" {
		return nil, fmt.Errorf("query text is empty")
	}

	if cached := s.lookupCache(ctx, projectID, normalized); cached != nil {
		return cached, nil
	}

	idx, err := s.deps.Indexes.Get(projectID)
	if err != nil {
		return nil, err
	}

	count, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &Answer{Answer: emptyCorpusAnswer, Sources: []Source{}}, nil
	}

	expanded := s.deps.Expander.Expand(ctx, question)
	results, err := s.deps.Retriever.Retrieve(ctx, idx, expanded)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Answer: noResultsAnswer, Sources: []Source{}}, nil
	}

	degraded := false
	text, err := s.deps.Generator.Generate(ctx, buildPrompt(results, question))
	if err != nil {
		if s.cfg.Query.StrictGeneration {
			return nil, err
		}
		slog.Warn("generation failed, returning retrieved excerpts",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
		text = excerptAnswer(results)
		degraded = true
	}

	answer := &Answer{Answer: text, Sources: dedupeSources(results)}

	// Degraded answers are not cached; a provider outage should not be
	// served for a full TTL after it recovers.
	if !degraded {
		s.storeCache(ctx, projectID, normalized, answer)
	}
	return answer, nil
}

// DeleteDocument removes a document's chunks from the project index and
// invalidates the project's cached results.
func (s *Service) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	idx, err := s.deps.Indexes.Get(projectID)
	if err != nil {
		return err
	}
	if err := idx.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.invalidate(ctx, projectID)
	return nil
}

// ClearProject removes every chunk in the project and invalidates its
// cached results.
func (s *Service) ClearProject(ctx context.Context, projectID string) error {
	idx, err := s.deps.Indexes.Get(projectID)
	if err != nil {
		return err
	}
	if err := idx.Clear(ctx); err != nil {
		return err
	}
	s.invalidate(ctx, projectID)
	return nil
}

// Document returns one document's lifecycle record.
func (s *Service) Document(ctx context.Context, documentID string) (*Document, error) {
	return s.deps.Statuses.Get(ctx, documentID)
}

// ListDocuments returns a project's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, projectID string) ([]*Document, error) {
	return s.deps.Statuses.ListByProject(ctx, projectID)
}

// lookupCache returns a cached answer or nil. Backend failures count as
// misses.
func (s *Service) lookupCache(ctx context.Context, projectID, normalized string) *Answer {
	if s.deps.Results == nil {
		return nil
	}

	entry, err := s.deps.Results.Get(ctx, projectID, normalized)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("result cache unavailable, continuing without it",
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
		}
		return nil
	}

	sources := make([]Source, len(entry.Sources))
	for i, src := range entry.Sources {
		sources[i] = Source{Content: src.Content, Source: src.Source}
	}
	return &Answer{Answer: entry.Answer, Sources: sources}
}

func (s *Service) storeCache(ctx context.Context, projectID, normalized string, answer *Answer) {
	if s.deps.Results == nil {
		return
	}

	sources := make([]cache.Source, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = cache.Source{Content: src.Content, Source: src.Source}
	}
	entry := &cache.Entry{Answer: answer.Answer, Sources: sources}
	if err := s.deps.Results.Set(ctx, projectID, normalized, entry); err != nil {
		slog.Warn("failed to cache query result",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}
}

// invalidate drops every cached result for the project. Invalidation after
// a corpus change is best effort; when the backend is down, lookups fail
// soft too, so a stale entry cannot be served from an unreachable cache.
func (s *Service) invalidate(ctx context.Context, projectID string) {
	if s.deps.Results == nil {
		return
	}
	if err := s.deps.Results.InvalidateProject(ctx, projectID); err != nil {
		slog.Warn("failed to invalidate project cache",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}
}
