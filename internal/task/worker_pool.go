package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerPool manages a pool of worker goroutines that run jobs
// from a job queue. It handles graceful shutdown and worker lifecycle.
// It implements Executor.
type WorkerPool struct {
	// jobs buffers submitted jobs until a worker picks them up
	jobs *JobQueue

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	// logger for structured logging
	logger *slog.Logger

	// errorHandler is called when a job panics
	// If nil, errors are only logged
	errorHandler func(err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// QueueSize is the number of jobs that may wait for a free worker
	// If zero or negative, defaults to 1024
	QueueSize int
}

// defaultQueueSize applies when WorkerPoolConfig.QueueSize is not positive.
const defaultQueueSize = 1024

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	// Apply defaults for invalid config values
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	// Create a cancelable context for shutdown coordination
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobs:         NewJobQueue(queueSize, logger),
		workerCount:  workerCount,
		wg:           sync.WaitGroup{},
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		errorHandler: nil, // Default to nil, can be set later with SetErrorHandler
	}
}

// SetErrorHandler allows setting a custom error handler for job panics
func (p *WorkerPool) SetErrorHandler(handler func(err error)) {
	p.errorHandler = handler
}

// Submit enqueues job for the next free worker.
func (p *WorkerPool) Submit(job Job) error {
	return p.jobs.Enqueue(job)
}

// Start launches the worker goroutines
func (p *WorkerPool) Start() {
	p.logger.Debug("starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the job queue, cancels running jobs and waits for every
// worker to exit. Jobs still buffered are dropped.
func (p *WorkerPool) Stop() {
	p.jobs.Close()
	p.cancel()
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// worker runs jobs from the queue until shutdown
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	source := p.jobs.GetChannel()
	for {
		select {
		case <-p.ctx.Done():
			// Context cancelled, stop worker
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-source:
			if !ok {
				// Channel closed, stop worker
				p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}

			p.run(job, id)
		}
	}
}

// run executes a single job, converting a panic into a logged error
func (p *WorkerPool) run(job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panicked: %v", r)
			p.logger.Error("job execution failed", "worker_id", workerID, "error", err)
			if p.errorHandler != nil {
				p.errorHandler(err)
			}
		}
	}()

	job(p.ctx)
}
