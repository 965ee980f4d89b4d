package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(2, 8, time.Second, zap.NewNop())
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(Task{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}
	require.NoError(t, p.Submit(Task{Name: "fail", Run: func(ctx context.Context) error {
		return errors.New("nope")
	}}))
	require.NoError(t, p.Submit(Task{Name: "panic", Run: func(ctx context.Context) error {
		panic("boom")
	}}))

	require.NoError(t, p.Shutdown(time.Second))
	assert.EqualValues(t, 5, ran.Load())

	m := p.GetMetrics()
	assert.EqualValues(t, 5, m.Processed)
	assert.EqualValues(t, 2, m.Failed)
}

func TestPoolBackpressure(t *testing.T) {
	// not started: nothing drains the queue
	p := NewPool(1, 1, time.Second, zap.NewNop())
	noop := Task{Name: "noop", Run: func(ctx context.Context) error { return nil }}

	require.NoError(t, p.Submit(noop))
	assert.ErrorIs(t, p.Submit(noop), ErrQueueFull)
	assert.EqualValues(t, 1, p.GetMetrics().Backpressure)

	p.Start()
	require.NoError(t, p.Shutdown(time.Second))
	assert.ErrorIs(t, p.Submit(noop), ErrStopped)
}

func TestPoolTaskTimeout(t *testing.T) {
	p := NewPool(1, 1, 20*time.Millisecond, zap.NewNop())
	p.Start()

	errCh := make(chan error, 1)
	require.NoError(t, p.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task context was never cancelled")
	}
	require.NoError(t, p.Shutdown(time.Second))
}
