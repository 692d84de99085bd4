// Package search implements hybrid retrieval: the user question is widened
// into a hypothetical answer passage, lexical and dense rankings run in
// parallel against it, and a weighted fusion merges them into one
// deduplicated list.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docuquery/docuquery/internal/provider"
)

const hydePrompt = `Write a short passage of two or three sentences that could plausibly answer the question below, as if it were an excerpt from a reference document. Do not say that it is hypothetical and do not address the reader.

Question: %s

Passage:`

// Expander rewrites a question into a hypothetical answer passage before
// retrieval. Answer passages share vocabulary with the documents they
// describe, which improves recall for both keyword and embedding search.
type Expander struct {
	gen provider.GenerationProvider
}

// NewExpander creates an expander backed by the given generation provider.
// A nil provider disables expansion.
func NewExpander(gen provider.GenerationProvider) *Expander {
	return &Expander{gen: gen}
}

// Expand returns the retrieval query for a question. The original terms are
// kept alongside the generated passage so exact keyword matches survive a
// drifting expansion. When generation fails the raw question is returned
// unchanged; expansion is a recall optimization, not a requirement.
func (e *Expander) Expand(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" || e.gen == nil {
		return question
	}

	passage, err := e.gen.Generate(ctx, fmt.Sprintf(hydePrompt, question))
	if err != nil {
		slog.Warn("query expansion failed, using raw question",
			slog.String("error", err.Error()))
		return question
	}
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return question
	}

	slog.Debug("query expanded",
		slog.String("question", question),
		slog.Int("passage_len", len(passage)))
	return question + "\n" + passage
}
