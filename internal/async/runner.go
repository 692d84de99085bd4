// Package async runs ingestion tasks on background goroutines, decoupled
// from the request that registered the document.
package async

import (
	"context"
	"log/slog"
	"sync"
)

// Runner executes fire-and-forget tasks. Tasks for the same or different
// documents may run concurrently; isolation is the task's own concern.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewRunner creates a runner whose tasks are cancelled when Stop is called.
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel}
}

// Submit schedules a task and returns immediately. It reports false once
// the runner is stopped. A panicking task is recovered and logged so one
// bad document cannot take down the process or its sibling ingestions.
func (r *Runner) Submit(name string, task func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background task panicked",
					slog.String("task", name),
					slog.Any("panic", rec))
			}
		}()

		if err := task(r.ctx); err != nil {
			slog.Error("background task failed",
				slog.String("task", name),
				slog.String("error", err.Error()))
		}
	}()
	return true
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop rejects new tasks, cancels running ones, and waits for them.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
