package taskrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndWait(t *testing.T) {
	r := New("test")
	assert.True(t, r.IsCompleted())

	boom := errors.New("boom")
	r.Run(func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, r.Wait(), boom)
	assert.True(t, r.IsCompleted())
}

func TestPanicBecomesError(t *testing.T) {
	r := New("test")
	r.Run(func(ctx context.Context) error { panic("bad") })

	err := r.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRunReplacesRunningTask(t *testing.T) {
	r := New("test")

	var firstStopped atomic.Bool
	started := make(chan struct{})
	r.Run(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		firstStopped.Store(true)
		return ctx.Err()
	})
	<-started

	r.Run(func(ctx context.Context) error {
		assert.True(t, firstStopped.Load())
		return nil
	})

	assert.NoError(t, r.Wait())
}

func TestRunRetry(t *testing.T) {
	r := New("test")
	r.PollInterval = time.Millisecond

	var attempts atomic.Int32
	r.RunRetry(func(ctx context.Context) error {
		attempts.Add(1)
		return nil
	}, func() bool { return attempts.Load() >= 3 })

	require.NoError(t, r.Wait())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestCancel(t *testing.T) {
	r := New("test")
	r.RunRetry(func(ctx context.Context) error { return nil }, func() bool { return false })

	r.Cancel()
	assert.True(t, r.IsCompleted())
	assert.ErrorIs(t, r.Err(), context.Canceled)
}

func TestWaitForCompletionTimeout(t *testing.T) {
	r := New("test")
	r.Run(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	defer r.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.WaitForCompletion(ctx), context.DeadlineExceeded)
	assert.False(t, r.IsCompleted())
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
