package jobs

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

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (s *countingSweeper) Sweep(ctx context.Context) (int, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return 2, nil
}

func TestSweepSchedulerRunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	ss := NewSweepScheduler(sweeper, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, ss.Start())
	assert.True(t, ss.IsRunning())
	assert.Error(t, ss.Start(), "double start")

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ss.Stop())
	assert.False(t, ss.IsRunning())

	stats := ss.GetStats()
	assert.GreaterOrEqual(t, stats.Runs, int64(2))
	assert.Equal(t, stats.Runs*2, stats.Corrections)
	assert.Zero(t, stats.Errors)

	require.NoError(t, ss.Stop())
}

func TestSweepSchedulerCountsFailures(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store down")}
	ss := NewSweepScheduler(sweeper, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, ss.Start())
	require.Eventually(t, func() bool { return ss.GetStats().Errors >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ss.Stop())
	assert.Zero(t, ss.GetStats().Corrections)
}

func TestSweepSchedulerRejectsZeroInterval(t *testing.T) {
	ss := NewSweepScheduler(&countingSweeper{}, 0, nil)
	assert.Error(t, ss.Start())
	assert.False(t, ss.IsRunning())
}
