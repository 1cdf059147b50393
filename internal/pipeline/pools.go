package pipeline

import (
	"log/slog"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/task"
)

// WorkerPools runs one task.WorkerPool per stage, sized from the stage
// settings. Worker counts are fixed for the life of the process.
type WorkerPools struct {
	pools map[domain.Stage]*task.WorkerPool
}

// NewWorkerPools creates the pools without starting them.
func NewWorkerPools(cfg config.StagesConfig, logger *slog.Logger) *WorkerPools {
	p := &WorkerPools{pools: make(map[domain.Stage]*task.WorkerPool, len(domain.Stages))}
	for _, stage := range domain.Stages {
		settings := cfg.Get(stage)
		pool := task.NewWorkerPool(task.WorkerPoolConfig{
			WorkerCount: settings.Workers,
			QueueSize:   settings.QueueSize,
		}, logger.With("pool", stage.String()))
		pool.SetErrorHandler(func(err error) {
			logger.Error("stage worker failed", "stage", stage.String(), "error", err)
		})
		p.pools[stage] = pool
	}
	return p
}

// Start starts every pool.
func (p *WorkerPools) Start() {
	for _, stage := range domain.Stages {
		p.pools[stage].Start()
	}
}

// Stop stops every pool and waits for running jobs to return.
func (p *WorkerPools) Stop() {
	for _, stage := range domain.Stages {
		p.pools[stage].Stop()
	}
}

// Executors returns the pools as per-stage executors.
func (p *WorkerPools) Executors() Executors {
	return Executors{
		Builder: p.pools[domain.StageBuilder],
		Sampler: p.pools[domain.StageSampler],
		Labeler: p.pools[domain.StageLabeler],
		Trainer: p.pools[domain.StageTrainer],
	}
}
