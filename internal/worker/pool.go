package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the queue has no free slot
var ErrQueueFull = errors.New("worker pool queue full (backpressure)")

// ErrStopped is returned by Submit after Shutdown has been called
var ErrStopped = errors.New("worker pool stopped")

// Task is a unit of background work. Run receives a context bounded by the
// pool's task timeout.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs fire-and-forget tasks (sweeps, badge evaluation) off the request
// path. Submissions never block: a full queue drops the task.
type Pool struct {
	jobs        chan Task
	workerCount int
	taskTimeout time.Duration
	logger      *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	metrics *PoolMetrics
}

// PoolMetrics tracks worker pool performance
type PoolMetrics struct {
	mu              sync.RWMutex
	processed       int64
	failed          int64
	backpressure    int64
	totalProcessing time.Duration
}

// NewPool creates a new worker pool
func NewPool(workerCount, queueSize int, taskTimeout time.Duration, logger *zap.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:        make(chan Task, queueSize),
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		logger:      logger.Named("worker"),
		ctx:         ctx,
		cancel:      cancel,
		metrics:     &PoolMetrics{},
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	p.logger.Info("starting worker pool",
		zap.Int("workers", p.workerCount),
		zap.Int("queue_size", cap(p.jobs)))

	for i := 1; i <= p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(id, task)
		}
	}
}

// process runs one task with panic recovery
func (p *Pool) process(workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.Int("worker", workerID),
				zap.String("task", task.Name),
				zap.Any("panic", r))
			p.metrics.incrementFailed()
		}
	}()

	ctx := p.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Warn("task failed",
			zap.Int("worker", workerID),
			zap.String("task", task.Name),
			zap.Duration("took", elapsed),
			zap.Error(err))
		p.metrics.incrementFailed()
		return
	}

	p.logger.Debug("task done",
		zap.Int("worker", workerID),
		zap.String("task", task.Name),
		zap.Duration("took", elapsed))
	p.metrics.recordSuccess(elapsed)
}

// Submit queues a task without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- task:
		return nil
	default:
		p.logger.Warn("queue full, dropping task", zap.String("task", task.Name))
		p.metrics.incrementBackpressure()
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// After timeout the remaining tasks are cancelled.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		m := p.GetMetrics()
		p.logger.Info("worker pool stopped",
			zap.Int64("processed", m.Processed),
			zap.Int64("failed", m.Failed),
			zap.Int64("backpressure_events", m.Backpressure))
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// Metrics is a point-in-time view of the pool counters
type Metrics struct {
	Processed         int64  `json:"processed"`
	Failed            int64  `json:"failed"`
	Backpressure      int64  `json:"backpressure_events"`
	AvgProcessingTime string `json:"avg_processing_time"`
	QueueUtilization  string `json:"queue_utilization"`
}

// GetMetrics returns a snapshot of the pool metrics
func (p *Pool) GetMetrics() Metrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	avg := time.Duration(0)
	if p.metrics.processed > 0 {
		avg = p.metrics.totalProcessing / time.Duration(p.metrics.processed)
	}

	return Metrics{
		Processed:         p.metrics.processed,
		Failed:            p.metrics.failed,
		Backpressure:      p.metrics.backpressure,
		AvgProcessingTime: avg.String(),
		QueueUtilization:  fmt.Sprintf("%d/%d", len(p.jobs), cap(p.jobs)),
	}
}

func (pm *PoolMetrics) recordSuccess(d time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processed++
	pm.totalProcessing += d
}

func (pm *PoolMetrics) incrementFailed() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failed++
}

func (pm *PoolMetrics) incrementBackpressure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.backpressure++
}
