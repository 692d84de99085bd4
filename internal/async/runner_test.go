package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunner_TasksRunConcurrently(t *testing.T) {
	// Given a runner and several submitted tasks
	r := NewRunner()
	var done atomic.Int64
	for i := 0; i < 5; i++ {
		ok := r.Submit("ingest", func(_ context.Context) error {
			done.Add(1)
			return nil
		})
		assert.True(t, ok)
	}

	// When waiting
	r.Wait()

	// Then every task ran
	assert.Equal(t, int64(5), done.Load())
}

func TestRunner_PanicDoesNotKillSiblings(t *testing.T) {
	// Given one panicking task and one healthy task
	r := NewRunner()
	var done atomic.Int64
	r.Submit("bad", func(_ context.Context) error {
		panic("corrupt input")
	})
	r.Submit("good", func(_ context.Context) error {
		done.Add(1)
		return nil
	})

	// When waiting
	r.Wait()

	// Then the healthy task completed
	assert.Equal(t, int64(1), done.Load())
}

func TestRunner_TaskErrorIsSwallowed(t *testing.T) {
	// Given a failing task
	r := NewRunner()
	r.Submit("failing", func(_ context.Context) error {
		return errors.New("ingestion failed")
	})

	// When waiting, nothing propagates to the caller
	r.Wait()
}

func TestRunner_StopCancelsAndRejects(t *testing.T) {
	// Given a task blocked on its context
	r := NewRunner()
	var cancelled atomic.Bool
	started := make(chan struct{})
	r.Submit("blocked", func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			cancelled.Store(true)
		case <-time.After(5 * time.Second):
		}
		return nil
	})
	<-started

	// When stopping
	r.Stop()

	// Then the task observed cancellation and new submissions are rejected
	assert.True(t, cancelled.Load())
	assert.False(t, r.Submit("late", func(_ context.Context) error { return nil }))
}
