package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeGenerator returns a canned passage and counts calls.
type fakeGenerator struct {
	response string
	err      error
	calls    atomic.Int64
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) ModelName() string { return "fake-gen" }
func (f *fakeGenerator) Close() error      { return nil }

func TestExpander_AppendsHypotheticalPassage(t *testing.T) {
	// Given a generator producing a passage
	gen := &fakeGenerator{response: "Refunds are issued within 30 days of purchase."}
	e := NewExpander(gen)

	// When expanding a question
	expanded := e.Expand(context.Background(), "what is the refund policy?")

	// Then the query keeps the original terms and gains the passage
	assert.Contains(t, expanded, "what is the refund policy?")
	assert.Contains(t, expanded, "Refunds are issued within 30 days")
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestExpander_GenerationFailureFallsBackToQuestion(t *testing.T) {
	// Given a generator that is down
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	e := NewExpander(gen)

	// When expanding
	expanded := e.Expand(context.Background(), "what is the refund policy?")

	// Then the raw question is used unchanged
	assert.Equal(t, "what is the refund policy?", expanded)
}

func TestExpander_BlankPassageFallsBackToQuestion(t *testing.T) {
	// Given a generator emitting only whitespace
	gen := &fakeGenerator{response: "   \n  "}
	e := NewExpander(gen)

	// When expanding
	expanded := e.Expand(context.Background(), "how long is shipping?")

	// Then the raw question is used unchanged
	assert.Equal(t, "how long is shipping?", expanded)
}

func TestExpander_EmptyQuestionSkipsGeneration(t *testing.T) {
	// Given an expander
	gen := &fakeGenerator{response: "irrelevant"}
	e := NewExpander(gen)

	// When expanding a blank question
	expanded := e.Expand(context.Background(), "   ")

	// Then nothing is generated
	assert.Equal(t, "", expanded)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestExpander_NilProviderDisablesExpansion(t *testing.T) {
	// Given an expander without a generation provider
	e := NewExpander(nil)

	// When expanding
	expanded := e.Expand(context.Background(), "what is the refund policy?")

	// Then the question passes through
	assert.Equal(t, "what is the refund policy?", expanded)
}
