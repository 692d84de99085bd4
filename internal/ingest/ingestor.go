package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	qerr "github.com/docuquery/docuquery/internal/errors"
	"github.com/docuquery/docuquery/internal/provider"
	"github.com/docuquery/docuquery/internal/store"
)

// Ingestor converts raw document bytes into indexed chunks.
type Ingestor struct {
	registry *Registry
	splitter *Splitter
	embedder provider.EmbeddingProvider
}

// NewIngestor creates an ingestor.
func NewIngestor(registry *Registry, splitter *Splitter, embedder provider.EmbeddingProvider) *Ingestor {
	return &Ingestor{
		registry: registry,
		splitter: splitter,
		embedder: embedder,
	}
}

// Ingest loads, splits, embeds, and indexes one document into the project
// index. It returns the number of chunks produced. A document whose
// extracted text is empty fails with an empty-source error; nothing is
// indexed for it.
func (i *Ingestor) Ingest(ctx context.Context, idx *store.Index, documentID, source string, data []byte, contentType string) (int, error) {
	loader, err := i.registry.Select(contentType, source)
	if err != nil {
		return 0, err
	}

	text, err := loader.Load(ctx, data, source)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, qerr.New(qerr.ErrCodeEmptySource,
			"document contains no extractable text", nil).
			WithDetail("source", source)
	}

	segments := i.splitter.Split(text)
	if len(segments) == 0 {
		return 0, qerr.New(qerr.ErrCodeEmptySource,
			"document produced no chunks", nil).
			WithDetail("source", source)
	}

	vectors, err := i.embedder.EmbedBatch(ctx, segments)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	chunks := make([]*store.Chunk, len(segments))
	for j, segment := range segments {
		chunks[j] = &store.Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			ProjectID:  idx.ProjectID(),
			Content:    segment,
			Position:   j,
			Source:     source,
			CreatedAt:  now,
		}
	}

	if err := idx.Add(ctx, chunks, vectors); err != nil {
		return 0, err
	}

	slog.Info("document ingested",
		slog.String("project_id", idx.ProjectID()),
		slog.String("document_id", documentID),
		slog.String("loader", loader.Name()),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}
