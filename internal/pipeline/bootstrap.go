package pipeline

import (
	"context"
	"fmt"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
)

// bootstrap builds and labels the first training set, then trains the
// first model on it.
func (c *Controller) bootstrap(ctx context.Context) error {
	c.logger.Info("building bootstrap set",
		"bootstrap_set_size", c.reloader.Current().Master.Thresholds.BootstrapSetSize)

	for !c.bootstrapSetComplete() {
		if err := c.BootstrapTick(ctx); err != nil {
			return err
		}
		if err := c.clock.Sleep(ctx, c.reloader.Current().Master.TickInterval); err != nil {
			return err
		}
	}

	return c.TrainBootstrap(ctx)
}

func (c *Controller) bootstrapSetComplete() bool {
	return c.q.labeler.CompletedCount() >= c.reloader.Current().Master.Thresholds.BootstrapSetSize
}

// BootstrapTick runs one tick of the bootstrap phase: keep the builder
// queue full while labeling has capacity, and hand finished structures
// straight to the labeler.
func (c *Controller) BootstrapTick(ctx context.Context) error {
	snap := c.refresh(ctx)
	th := snap.Master.Thresholds
	paths := snap.Master.ResolvedPaths()

	if c.q.labeler.QueuedCount() < th.TargetQueuedLabels {
		for c.q.builder.Size() < th.ParallelBuilders {
			id := fmt.Sprintf("mol-boot-%010d", c.status.NextMoleculeID())
			c.q.builder.AddTask(buildJob{ID: id, Config: snap.Builder})
		}
	}

	if c.q.builder.CompletedCount() > th.MinBuilderBatch {
		structures, failed := c.q.builder.CollectResults()
		c.status.RecordFailures(domain.StageBuilder, failed)
		for _, s := range structures {
			if err := c.check(ctx, domain.StageBuilder, s); err != nil {
				return err
			}
			c.q.labeler.AddTask(newLabelJob(s, snap, paths))
		}
	}

	return c.endTick(ctx, events.PhaseBootstrap)
}

// TrainBootstrap writes every finished label as the first shard, trains on
// it and waits for the result. A training that fails or reports a failed
// network returns ErrBootstrapTraining.
func (c *Controller) TrainBootstrap(ctx context.Context) error {
	snap := c.reloader.Current()
	paths := snap.Master.ResolvedPaths()

	records, err := c.writeShard(ctx, snap)
	if err != nil {
		return err
	}

	req := domain.TrainRequest{
		Config:         snap.Trainer,
		DataDir:        paths.DataDir,
		ModelPath:      paths.ModelPath,
		TrainingID:     c.status.NextTrainingID(),
		Resources:      snap.Master.TrainerResources,
		RemoveExisting: true,
	}
	t := c.q.trainer.AddTask(req)
	if err := c.persist(ctx); err != nil {
		return err
	}

	c.logger.Info("waiting for bootstrap training",
		"training_id", req.TrainingID,
		"records", records)

	if _, err := t.Wait(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	results, failed := c.q.trainer.CollectResults()
	c.status.RecordFailures(domain.StageTrainer, failed)

	if len(results) == 0 {
		return c.failBootstrap(ctx, req.TrainingID, "training task failed")
	}
	result := results[0]
	if !result.Succeeded() {
		c.status.RecordFailures(domain.StageTrainer, 1)
		return c.failBootstrap(ctx, req.TrainingID, fmt.Sprintf("networks reported %v", result.Success))
	}
	if !c.promote(ctx, result.ModelID) {
		return c.failBootstrap(ctx, req.TrainingID, fmt.Sprintf("model id %d cannot be adopted", result.ModelID))
	}

	c.emit(ctx, events.TypeBootstrapCompleted, events.BootstrapCompleted{
		ModelID: result.ModelID,
		Records: records,
	})
	return c.persist(ctx)
}

func (c *Controller) failBootstrap(ctx context.Context, trainingID int, reason string) error {
	c.logger.Error("bootstrap training failed",
		"training_id", trainingID,
		"reason", reason)
	if err := c.persist(ctx); err != nil {
		return err
	}
	return fmt.Errorf("%w: training %d: %s", ErrBootstrapTraining, trainingID, reason)
}
