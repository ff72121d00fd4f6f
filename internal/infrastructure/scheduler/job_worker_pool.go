package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewsync/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// JobExecutor Interface
// ---------------------------------------------------------------------------

// JobExecutor runs one fetch job to its terminal status.
type JobExecutor interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// JobExecutorFunc adapts a plain function to the JobExecutor interface.
type JobExecutorFunc func(ctx context.Context, jobID uuid.UUID) error

// Run calls f(ctx, jobID).
func (f JobExecutorFunc) Run(ctx context.Context, jobID uuid.UUID) error {
	return f(ctx, jobID)
}

// ---------------------------------------------------------------------------
// JobWorkerPoolConfig
// ---------------------------------------------------------------------------

// JobWorkerPoolConfig holds configuration for the fetch job worker pool
type JobWorkerPoolConfig struct {
	// Workers is the number of concurrently running jobs
	Workers int
	// QueueSize bounds the pending job queue
	QueueSize int
}

// DefaultJobWorkerPoolConfig returns default configuration
func DefaultJobWorkerPoolConfig() JobWorkerPoolConfig {
	return JobWorkerPoolConfig{
		Workers:   4,
		QueueSize: 256,
	}
}

// PoolConfigFromJobs derives pool settings from the jobs section of the
// application configuration, falling back to defaults for unset values.
func PoolConfigFromJobs(cfg config.JobsConfig) JobWorkerPoolConfig {
	out := DefaultJobWorkerPoolConfig()
	if cfg.WorkerConcurrency > 0 {
		out.Workers = cfg.WorkerConcurrency
	}
	if cfg.QueueSize > 0 {
		out.QueueSize = cfg.QueueSize
	}
	return out
}

// Validate validates the configuration
func (c *JobWorkerPoolConfig) Validate() error {
	if c.Workers <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// JobWorkerPool
// ---------------------------------------------------------------------------

// JobWorkerPool pulls queued fetch jobs and executes them on a bounded set
// of workers. It is the dispatcher behind job submission: Dispatch enqueues,
// workers call the executor. Job timeouts are owned by the executor.
type JobWorkerPool struct {
	config   JobWorkerPoolConfig
	executor JobExecutor
	logger   *zap.Logger

	queue     chan uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewJobWorkerPool creates a new fetch job worker pool
func NewJobWorkerPool(config JobWorkerPoolConfig, executor JobExecutor, logger *zap.Logger) (*JobWorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobWorkerPool{
		config:   config,
		executor: executor,
		logger:   logger,
		queue:    make(chan uuid.UUID, config.QueueSize),
	}, nil
}

// Start starts the worker pool
func (p *JobWorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("fetch job worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)

	return nil
}

// Stop gracefully stops the pool. Queued jobs that have not started are
// drained; jobs already running finish unless ctx expires first.
func (p *JobWorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("fetch job worker pool stopped gracefully")
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		p.logger.Warn("fetch job worker pool stop timed out")
		if p.cancel != nil {
			p.cancel()
		}
		return ctx.Err()
	}
}

// Dispatch enqueues a job for execution. Never blocks: a full queue is
// reported to the caller so the submission can be failed.
func (p *JobWorkerPool) Dispatch(jobID uuid.UUID) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	p.mu.Unlock()

	select {
	case p.queue <- jobID:
		p.logger.Debug("fetch job enqueued", zap.String("job_id", jobID.String()))
		return nil
	default:
		return ErrJobQueueFull
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *JobWorkerPool) QueueDepth() int {
	return len(p.queue)
}

// worker processes jobs from the queue
func (p *JobWorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	p.logger.Debug("fetch job worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("fetch job worker stopping", zap.Int("worker_id", workerID))
			return
		case jobID, ok := <-p.queue:
			if !ok {
				p.logger.Debug("fetch job queue closed", zap.Int("worker_id", workerID))
				return
			}
			p.processJob(ctx, jobID, workerID)
		}
	}
}

// processJob executes a single job
func (p *JobWorkerPool) processJob(ctx context.Context, jobID uuid.UUID, workerID int) {
	start := time.Now()
	p.logger.Info("processing fetch job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", jobID.String()),
	)

	if err := p.executor.Run(ctx, jobID); err != nil {
		p.logger.Error("fetch job execution failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("fetch job processed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", jobID.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
}
