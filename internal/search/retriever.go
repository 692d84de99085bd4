package search

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/docuquery/docuquery/internal/lexical"
	"github.com/docuquery/docuquery/internal/provider"
	"github.com/docuquery/docuquery/internal/store"
)

// Default retrieval depths.
const (
	DefaultLexicalK = 5
	DefaultDenseK   = 5
	DefaultTopN     = 7
)

// Config controls retrieval depth and fusion weighting.
type Config struct {
	LexicalK int
	DenseK   int
	TopN     int
	Weights  Weights
}

// Retriever runs keyword and embedding retrieval in parallel against a
// query and fuses the two rankings.
type Retriever struct {
	embedder  provider.EmbeddingProvider
	snapshots *lexical.Cache
	fuser     *Fuser

	lexicalK int
	denseK   int
	topN     int
}

// NewRetriever creates a retriever. Non-positive depths fall back to the
// package defaults.
func NewRetriever(embedder provider.EmbeddingProvider, snapshots *lexical.Cache, cfg Config) *Retriever {
	if cfg.LexicalK <= 0 {
		cfg.LexicalK = DefaultLexicalK
	}
	if cfg.DenseK <= 0 {
		cfg.DenseK = DefaultDenseK
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Retriever{
		embedder:  embedder,
		snapshots: snapshots,
		fuser:     NewFuser(cfg.Weights),
		lexicalK:  cfg.LexicalK,
		denseK:    cfg.DenseK,
		topN:      cfg.TopN,
	}
}

// Retrieve returns the fused top chunks for a query against one project
// index. An empty project short-circuits to an empty result before any
// provider call is made. If one retrieval source fails the other's ranking
// is returned alone; only a dual failure is an error.
func (r *Retriever) Retrieve(ctx context.Context, idx *store.Index, query string) ([]*ScoredChunk, error) {
	count, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []*ScoredChunk{}, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		lexHits, denseHits []Hit
		lexErr, denseErr   error
	)

	g.Go(func() error {
		lexHits, lexErr = r.searchLexical(gctx, idx, query)
		// A nil return keeps the dense search running on failure.
		return nil
	})

	g.Go(func() error {
		denseHits, denseErr = r.searchDense(gctx, idx, query)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, waitErr
	}

	if lexErr != nil && denseErr != nil {
		return nil, errors.Join(lexErr, denseErr)
	}
	if lexErr != nil {
		slog.Warn("lexical retrieval failed, using dense results only",
			slog.String("project_id", idx.ProjectID()),
			slog.String("error", lexErr.Error()))
	}
	if denseErr != nil {
		slog.Warn("dense retrieval failed, using lexical results only",
			slog.String("project_id", idx.ProjectID()),
			slog.String("error", denseErr.Error()))
	}

	return r.fuser.Fuse(lexHits, denseHits, r.topN), nil
}

// searchLexical queries a BM25 snapshot of the project's current chunks and
// resolves the hit IDs back to chunks.
func (r *Retriever) searchLexical(ctx context.Context, idx *store.Index, query string) ([]Hit, error) {
	snap, err := r.snapshots.Get(ctx, idx)
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	results, err := snap.Search(ctx, query, r.lexicalK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ChunkID
	}
	byID, err := idx.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		chunk, ok := byID[res.ChunkID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Chunk: chunk, Score: res.Score})
	}
	return hits, nil
}

// searchDense embeds the query and runs nearest-neighbor search.
func (r *Retriever) searchDense(ctx context.Context, idx *store.Index, query string) ([]Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := idx.Search(ctx, vec, r.denseK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{Chunk: res.Chunk, Score: float64(res.Score)})
	}
	return hits, nil
}
