package search

import (
	"sort"

	"github.com/docuquery/docuquery/internal/store"
)

// Weights controls the contribution of each retrieval source to the fused
// score. They are expected to sum to 1.0.
type Weights struct {
	Lexical float64
	Dense   float64
}

// DefaultWeights gives both sources equal influence.
var DefaultWeights = Weights{Lexical: 0.5, Dense: 0.5}

// Hit is a single-source retrieval result prior to fusion.
type Hit struct {
	Chunk *store.Chunk
	Score float64
}

// ScoredChunk is one fused retrieval hit.
type ScoredChunk struct {
	Chunk       *store.Chunk
	Score       float64 // weighted combination of the normalized source scores
	LexicalRank int     // 1-indexed position in the lexical list, 0 if absent
	DenseRank   int     // 1-indexed position in the dense list, 0 if absent
	InBothLists bool
}

// Fuser merges a lexical and a dense ranking with weighted scores.
//
// BM25 scores and cosine similarities live on incomparable scales, so each
// list is min-max normalized to [0, 1] before weighting. A chunk present in
// both lists accumulates both contributions and therefore outranks
// single-source chunks with equal normalized scores.
type Fuser struct {
	weights Weights
}

// NewFuser creates a fuser. Non-positive weights fall back to DefaultWeights.
func NewFuser(w Weights) *Fuser {
	if w.Lexical <= 0 && w.Dense <= 0 {
		w = DefaultWeights
	}
	return &Fuser{weights: w}
}

// Fuse combines the two rankings, collapses chunks with identical text to
// the highest-scoring occurrence, and returns the merged list truncated to
// topN (topN <= 0 means no truncation).
//
// Results are ordered by fused score, then presence in both lists, then
// chunk ID for determinism.
func (f *Fuser) Fuse(lexical, dense []Hit, topN int) []*ScoredChunk {
	if len(lexical) == 0 && len(dense) == 0 {
		return []*ScoredChunk{}
	}

	byID := make(map[string]*ScoredChunk, len(lexical)+len(dense))

	lexNorm := minMaxNormalize(lexical)
	for rank, h := range lexical {
		r := getOrCreate(byID, h.Chunk)
		r.Score += f.weights.Lexical * lexNorm[rank]
		r.LexicalRank = rank + 1
	}

	denseNorm := minMaxNormalize(dense)
	for rank, h := range dense {
		r := getOrCreate(byID, h.Chunk)
		r.Score += f.weights.Dense * denseNorm[rank]
		r.DenseRank = rank + 1
		if r.LexicalRank > 0 {
			r.InBothLists = true
		}
	}

	results := dedupeByContent(byID)

	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})

	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

func getOrCreate(m map[string]*ScoredChunk, c *store.Chunk) *ScoredChunk {
	if r, ok := m[c.ID]; ok {
		return r
	}
	r := &ScoredChunk{Chunk: c}
	m[c.ID] = r
	return r
}

// minMaxNormalize maps a list's scores onto [0, 1]. A list whose scores are
// all equal normalizes to 1.0 so a single-hit list still carries full weight.
func minMaxNormalize(hits []Hit) []float64 {
	if len(hits) == 0 {
		return nil
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	norm := make([]float64, len(hits))
	for i, h := range hits {
		if hi == lo {
			norm[i] = 1.0
		} else {
			norm[i] = (h.Score - lo) / (hi - lo)
		}
	}
	return norm
}

// dedupeByContent keeps one entry per distinct chunk text. Duplicate spans
// arise when overlapping documents are ingested; citing both adds noise
// without adding evidence.
func dedupeByContent(m map[string]*ScoredChunk) []*ScoredChunk {
	best := make(map[string]*ScoredChunk, len(m))
	for _, r := range m {
		prev, ok := best[r.Chunk.Content]
		if !ok || compare(r, prev) {
			best[r.Chunk.Content] = r
		}
	}

	results := make([]*ScoredChunk, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	return results
}

// compare reports whether a should rank before b.
func compare(a, b *ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	return a.Chunk.ID < b.Chunk.ID
}
