package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper reconciles the ranking store with the profile source
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepScheduler runs the reconciliation sweep on a fixed interval.
// Runs never overlap; a tick that arrives while a sweep is still going is
// rescheduled.
type SweepScheduler struct {
	sweeper   Sweeper
	interval  time.Duration
	logger    *zap.Logger
	scheduler gocron.Scheduler
	running   atomic.Bool

	runs        atomic.Int64
	corrections atomic.Int64
	errorCount  atomic.Int64
	startTime   time.Time
}

// NewSweepScheduler creates a scheduler; call Start to begin ticking
func NewSweepScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.Named("sweep-scheduler"),
	}
}

// Start registers the sweep job and starts the scheduler
func (ss *SweepScheduler) Start() error {
	if ss.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if !ss.running.CompareAndSwap(false, true) {
		return errors.New("sweep scheduler already running")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		ss.running.Store(false)
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(ss.interval),
		gocron.NewTask(ss.run),
		gocron.WithName("leaderboard-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		ss.running.Store(false)
		return fmt.Errorf("register sweep job: %w", err)
	}

	ss.scheduler = sched
	ss.startTime = time.Now()
	sched.Start()

	ss.logger.Info("sweep scheduler started", zap.Duration("interval", ss.interval))
	return nil
}

// run is one scheduled tick; gocron passes the job's context
func (ss *SweepScheduler) run(ctx context.Context) {
	ss.runs.Add(1)
	corrections, err := ss.sweeper.Sweep(ctx)
	if err != nil {
		ss.errorCount.Add(1)
		ss.logger.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	ss.corrections.Add(int64(corrections))
	if corrections > 0 {
		ss.logger.Info("scheduled sweep corrected entries", zap.Int("corrections", corrections))
	}
}

// Stop shuts the scheduler down and waits for a running sweep to return
func (ss *SweepScheduler) Stop() error {
	if !ss.running.CompareAndSwap(true, false) {
		return nil
	}
	err := ss.scheduler.Shutdown()

	ss.logger.Info("sweep scheduler stopped",
		zap.Int64("runs", ss.runs.Load()),
		zap.Int64("corrections", ss.corrections.Load()),
		zap.Int64("errors", ss.errorCount.Load()),
		zap.Duration("uptime", time.Since(ss.startTime).Round(time.Second)))
	return err
}

// IsRunning reports whether the scheduler is ticking
func (ss *SweepScheduler) IsRunning() bool {
	return ss.running.Load()
}

// Stats is a snapshot of the scheduler counters
type Stats struct {
	Running     bool  `json:"running"`
	Runs        int64 `json:"runs"`
	Corrections int64 `json:"corrections"`
	Errors      int64 `json:"errors"`
}

// GetStats returns the current counters
func (ss *SweepScheduler) GetStats() Stats {
	return Stats{
		Running:     ss.running.Load(),
		Runs:        ss.runs.Load(),
		Corrections: ss.corrections.Load(),
		Errors:      ss.errorCount.Load(),
	}
}
