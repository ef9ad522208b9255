package serviceworker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_WaitsForTasks(t *testing.T) {
	t.Parallel()
	tr := NewTracker(t.Context(), logger.NewNop())

	var done atomic.Int32
	release := make(chan struct{})
	for range 3 {
		require.True(t, tr.WaitUntil("task", func(context.Context) error {
			<-release
			done.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tr.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, tr.Close(t.Context()))
	assert.EqualValues(t, 3, done.Load())
}

func TestTracker_RefusesAfterClose(t *testing.T) {
	t.Parallel()
	tr := NewTracker(t.Context(), logger.NewNop())
	require.NoError(t, tr.Close(t.Context()))
	assert.False(t, tr.WaitUntil("late", func(context.Context) error { return nil }))
}

func TestTracker_ContextOutlivesCaller(t *testing.T) {
	t.Parallel()
	parent, cancel := context.WithCancel(t.Context())
	tr := NewTracker(parent, logger.NewNop())
	cancel()

	var ctxErr error
	tr.WaitUntil("write", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})
	require.NoError(t, tr.Close(t.Context()))
	assert.NoError(t, ctxErr)
}

func TestTracker_SurvivesFailuresAndPanics(t *testing.T) {
	t.Parallel()
	tr := NewTracker(t.Context(), logger.NewNop())
	tr.WaitUntil("fails", func(context.Context) error { return errors.New("disk full") })
	tr.WaitUntil("panics", func(context.Context) error { panic("boom") })
	assert.NoError(t, tr.Close(t.Context()))
}
