package pipeline

import (
	"context"
	"fmt"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
)

// Tick runs one steady-state tick. Rules run in a fixed order and each one
// sees the queue changes made by the rules before it.
func (c *Controller) Tick(ctx context.Context) error {
	snap := c.refresh(ctx)
	th := snap.Master.Thresholds
	paths := snap.Master.ResolvedPaths()

	// Promotion only considers training runs that had finished before this
	// tick started.
	trainingFinished := c.q.trainer.CompletedCount() > 0

	model, hasModel := c.status.Model()

	// Builder admission.
	if hasModel && c.q.labeler.QueuedCount() < th.TargetQueuedLabels {
		for c.q.builder.Size()+c.q.sampler.Size() < th.ParallelSamplers {
			id := fmt.Sprintf("mol-%04d-%010d", model, c.status.NextMoleculeID())
			c.q.builder.AddTask(buildJob{ID: id, Config: snap.Builder})
		}
	}

	// Builder to sampler. Without a model there is nothing to sample with,
	// so finished structures wait for one.
	if hasModel && c.q.builder.CompletedCount() > 0 {
		handle := domain.NewModelHandle(model, paths.ModelPath)
		structures, failed := c.q.builder.CollectResults()
		c.status.RecordFailures(domain.StageBuilder, failed)
		for _, s := range structures {
			if err := c.check(ctx, domain.StageBuilder, s); err != nil {
				return err
			}
			c.q.sampler.AddTask(sampleJob{Structure: s, Config: snap.Sampler, Model: handle})
		}
	}

	// Sampler to labeler.
	if c.q.sampler.CompletedCount() > th.MinSamplerBatch {
		results, failed := c.q.sampler.CollectResults()
		c.status.RecordFailures(domain.StageSampler, failed)
		selected := 0
		for _, r := range results {
			if !r.Selected() {
				continue
			}
			if err := c.check(ctx, domain.StageSampler, r.Structure); err != nil {
				return err
			}
			c.q.labeler.AddTask(newLabelJob(r.Structure, snap, paths))
			selected++
		}
		c.logger.Info("sampler batch collected",
			"sampled", len(results),
			"selected", selected,
			"failed", failed)
	}

	// Accumulate and retrain.
	if c.q.trainer.Size() == 0 {
		switch {
		case c.q.labeler.CompletedCount() > th.SaveShardThreshold:
			if err := c.retrain(ctx, snap, paths); err != nil {
				return err
			}
		case !hasModel && c.status.ShardID > 0:
			c.trainOnExistingShards(snap, paths)
		}
	}

	// Promotion.
	if trainingFinished {
		if err := c.collectTraining(ctx); err != nil {
			return err
		}
	}

	return c.endTick(ctx, events.PhaseSteadyState)
}

// retrain writes the finished labels as a new shard and trains a new model
// on top of the current one.
func (c *Controller) retrain(ctx context.Context, snap *config.Snapshot, paths config.PathsConfig) error {
	if _, err := c.writeShard(ctx, snap); err != nil {
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
	if model, ok := c.status.Model(); ok {
		base := domain.NewModelHandle(model, paths.ModelPath)
		req.BaseModel = &base
	}
	c.q.trainer.AddTask(req)

	c.logger.Info("training submitted", "training_id", req.TrainingID, "base_model", req.BaseModel)
	return nil
}

// trainOnExistingShards starts the first training of a run that has shards
// on disk but no model, keeping the shards in place.
func (c *Controller) trainOnExistingShards(snap *config.Snapshot, paths config.PathsConfig) {
	req := domain.TrainRequest{
		Config:     snap.Trainer,
		DataDir:    paths.DataDir,
		ModelPath:  paths.ModelPath,
		TrainingID: c.status.NextTrainingID(),
		Resources:  snap.Master.TrainerResources,
	}
	c.q.trainer.AddTask(req)

	c.logger.Info("no model found, training on existing shards",
		"training_id", req.TrainingID,
		"current_h5_id", c.status.ShardID)
}

// collectTraining collects finished training runs and promotes the newest
// successful model. When the run had no model yet, the collected training was
// its first one and a failure is fatal like a failed bootstrap training.
func (c *Controller) collectTraining(ctx context.Context) error {
	_, hadModel := c.status.Model()

	results, failed := c.q.trainer.CollectResults()
	c.status.RecordFailures(domain.StageTrainer, failed)

	promoted := false
	for _, r := range results {
		if !r.Succeeded() {
			c.status.RecordFailures(domain.StageTrainer, 1)
			c.logger.Warn("training reported failed networks",
				"model_id", r.ModelID,
				"success", r.Success)
			continue
		}
		if c.promote(ctx, r.ModelID) {
			promoted = true
		}
	}

	if !hadModel && !promoted {
		return c.failBootstrap(ctx, c.status.TrainingID-1,
			fmt.Sprintf("first training on existing shards produced no model (%d failed, %d collected)", failed, len(results)))
	}
	return nil
}
