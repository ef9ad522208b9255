package serviceworker

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopos/gopos-edge/internal/logger"
)

// Tracker keeps the worker alive until background work it started has
// finished. Work registered after Close is refused.
type Tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	base   context.Context
	log    logger.Logger
}

// NewTracker creates a tracker. Tasks run with a context derived from
// base that is never cancelled by the request that started them.
func NewTracker(base context.Context, log logger.Logger) *Tracker {
	return &Tracker{base: context.WithoutCancel(base), log: log.Module("tracker")}
}

// WaitUntil runs task in the background and tracks it. Errors and panics
// are logged, never propagated. Returns false when the tracker is closed.
func (t *Tracker) WaitUntil(name string, task func(ctx context.Context) error) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.log.Warn("tracker closed, dropping task", logger.String("task", name))
		return false
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("background task panicked",
					logger.String("task", name),
					logger.String("panic", fmt.Sprint(r)))
			}
		}()
		if err := task(t.base); err != nil {
			t.log.Warn("background task failed", logger.String("task", name), logger.Error(err))
		}
	}()
	return true
}

// Wait blocks until every tracked task has finished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses new tasks and waits for tracked ones.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Wait(ctx)
}
