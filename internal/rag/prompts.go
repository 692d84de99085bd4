package rag

import (
	"fmt"
	"strings"

	"github.com/docuquery/docuquery/internal/search"
)

// contextSeparator delimits chunks inside the prompt context block.
const contextSeparator = "\n\n---\n\n"

// Fixed answers for queries the pipeline resolves without generation.
const (
	emptyCorpusAnswer = "I couldn't find relevant information in your documents. Upload documents to this project first."
	noResultsAnswer   = "I couldn't find anything in your documents related to that question."
)

// groundedPromptFormat instructs the model to stay inside the retrieved
// context and to refuse explicitly rather than guess.
const groundedPromptFormat = `You are an assistant answering questions about a user's documents.

Answer using only the context below. If the context does not contain the information needed to answer, reply exactly: "I couldn't find the answer to that in your documents." Do not use outside knowledge and do not guess.

Context:
%s

Question: %s

Answer:`

func buildPrompt(results []*search.ScoredChunk, question string) string {
	return fmt.Sprintf(groundedPromptFormat, buildContext(results), question)
}

func buildContext(results []*search.ScoredChunk) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return strings.Join(parts, contextSeparator)
}

// excerptAnswer is the degraded answer used when the generation provider is
// unavailable: the retrieved passages verbatim, best first.
func excerptAnswer(results []*search.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("The answer generator is currently unavailable. These are the most relevant passages from your documents:\n\n")
	b.WriteString(buildContext(results))
	return b.String()
}

// dedupeSources converts retrieval results into citations, collapsing
// repeated chunk text while preserving rank order.
func dedupeSources(results []*search.ScoredChunk) []Source {
	seen := make(map[string]bool, len(results))
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if seen[r.Chunk.Content] {
			continue
		}
		seen[r.Chunk.Content] = true
		sources = append(sources, Source{Content: r.Chunk.Content, Source: r.Chunk.Source})
	}
	return sources
}
