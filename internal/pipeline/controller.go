package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/redact"
	"github.com/phrazzld/alpipe/internal/stage"
	"github.com/phrazzld/alpipe/internal/store"
)

// ErrBootstrapTraining is returned by Run when the first training run does
// not produce a usable model. The pipeline cannot continue without one.
var ErrBootstrapTraining = errors.New("bootstrap training failed, operator investigation required")

// Deps are the collaborators of a Controller.
type Deps struct {
	Reloader  *config.Reloader
	Stages    stage.Set
	Executors Executors
	Store     store.StatusStore
	Shards    store.ShardWriter

	// Emitter is optional; events are dropped when it is nil.
	Emitter events.EventEmitter

	// Clock is optional and defaults to SystemClock.
	Clock Clock

	Logger *slog.Logger
}

// Controller drives the pipeline. All of its methods must be called from a
// single goroutine.
type Controller struct {
	q        queues
	checker  stage.Checker
	status   *domain.Status
	reloader *config.Reloader
	store    store.StatusStore
	shards   store.ShardWriter
	emitter  events.EventEmitter
	clock    Clock
	logger   *slog.Logger
	ticks    int64
}

// New creates a Controller that continues from status.
func New(status *domain.Status, deps Deps) (*Controller, error) {
	switch {
	case status == nil:
		return nil, errors.New("status is required")
	case deps.Reloader == nil || deps.Reloader.Current() == nil:
		return nil, errors.New("reloader with an initial configuration is required")
	case deps.Stages.Builder == nil, deps.Stages.Sampler == nil,
		deps.Stages.Labeler == nil, deps.Stages.Trainer == nil:
		return nil, errors.New("an implementation of every stage is required")
	case deps.Stages.Checker == nil:
		return nil, errors.New("structure checker is required")
	case deps.Executors.Builder == nil, deps.Executors.Sampler == nil,
		deps.Executors.Labeler == nil, deps.Executors.Trainer == nil:
		return nil, errors.New("an executor for every stage is required")
	case deps.Store == nil:
		return nil, errors.New("status store is required")
	case deps.Shards == nil:
		return nil, errors.New("shard writer is required")
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	}

	if deps.Emitter == nil {
		deps.Emitter = events.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	log := deps.Logger.With("component", "pipeline")

	return &Controller{
		q:        newQueues(deps.Stages, deps.Executors, log),
		checker:  deps.Stages.Checker,
		status:   status,
		reloader: deps.Reloader,
		store:    deps.Store,
		shards:   deps.Shards,
		emitter:  deps.Emitter,
		clock:    deps.Clock,
		logger:   log,
	}, nil
}

// Status returns a copy of the current status.
func (c *Controller) Status() *domain.Status {
	return c.status.Clone()
}

// NeedsBootstrap reports whether the run has neither a shard nor a model
// and must build its first training set.
func (c *Controller) NeedsBootstrap() bool {
	return c.status.ShardID == 0 && !c.status.HasModel()
}

// Run drives the pipeline until ctx is cancelled, which returns nil. Any
// other return is fatal: a structure rejected by the checker, a failed
// bootstrap training, or a status or shard that could not be persisted.
func (c *Controller) Run(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, c.logger)

	if c.NeedsBootstrap() {
		if err := c.bootstrap(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	c.logger.Info("entering steady state",
		"current_model_id", c.status.ModelID,
		"current_h5_id", c.status.ShardID)

	for {
		if err := c.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.clock.Sleep(ctx, c.reloader.Current().Master.TickInterval); err != nil {
			return nil
		}
	}
}

// refresh reloads the configuration. A failed reload is logged and the
// previous snapshot is returned. Changes to settings read only at startup are
// reported and otherwise have no effect.
func (c *Controller) refresh(ctx context.Context) *config.Snapshot {
	prev := c.reloader.Current()
	snap, err := c.reloader.Refresh()
	if err != nil {
		c.logger.Warn("configuration reload failed, keeping previous configuration",
			"error", redact.Error(err),
			"failures", c.reloader.Failures())
		c.emit(ctx, events.TypeReloadFailed, events.ReloadFailed{
			Error:    redact.Error(err),
			Failures: c.reloader.Failures(),
		})
		return snap
	}

	if changed := config.StartupOnlyChanges(prev.Master, snap.Master); len(changed) > 0 {
		c.logger.Warn("configuration change ignored until restart", "settings", changed)
	}
	return snap
}

// check runs the structural checker on a structure about to cross a stage
// boundary. A rejection stops the pipeline: the status is persisted and the
// returned error wraps domain.ErrInvalidStructure.
func (c *Controller) check(ctx context.Context, from domain.Stage, s domain.Structure) error {
	err := c.checker.Check(s)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrInvalidStructure) {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidStructure, err)
	}

	c.logger.Error("structure rejected, stopping",
		"stage", from.String(),
		"molecule_id", s.MoleculeID,
		"error", err)

	err = fmt.Errorf("%s output %q: %w", from, s.MoleculeID, err)
	if perr := c.persist(ctx); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// persist saves the status even when ctx is already cancelled.
func (c *Controller) persist(ctx context.Context) error {
	if err := c.store.Save(context.WithoutCancel(ctx), c.status); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	return nil
}

// emit publishes an event. Handler failures are logged and never stop the
// pipeline.
func (c *Controller) emit(ctx context.Context, eventType string, payload interface{}) {
	event, err := events.NewEvent(eventType, payload, c.clock.Now())
	if err != nil {
		c.logger.Error("failed to create event", "event_type", eventType, "error", err)
		return
	}
	if err := c.emitter.EmitEvent(ctx, event); err != nil {
		c.logger.Warn("event handler failed", "event_type", eventType, "error", err)
	}
}

// endTick logs the queue reports, persists the status and announces the
// completed tick.
func (c *Controller) endTick(ctx context.Context, phase string) error {
	c.ticks++

	reports := c.q.reports(phase == events.PhaseBootstrap)
	for _, r := range reports {
		c.logger.Info("queue status",
			"phase", phase,
			"stage", r.Stage,
			"queued", r.Queued,
			"completed", r.Completed,
			"size", r.Size)
	}

	if err := c.persist(ctx); err != nil {
		return err
	}

	c.emit(ctx, events.TypeTickCompleted, events.TickCompleted{
		Phase:  phase,
		Tick:   c.ticks,
		Status: *c.status.Clone(),
		Queues: reports,
	})
	return nil
}

// writeShard collects every finished labeling task and writes the labeled
// structures as the next shard.
func (c *Controller) writeShard(ctx context.Context, snap *config.Snapshot) (int, error) {
	records, failed := c.q.labeler.CollectResults()
	c.status.RecordFailures(domain.StageLabeler, failed)

	shardID := c.status.NextShardID()
	if err := c.shards.WriteShard(ctx, shardID, records, snap.Master.Properties); err != nil {
		return 0, fmt.Errorf("write shard %d: %w", shardID, err)
	}

	c.logger.Info("shard written",
		"shard_id", shardID,
		"records", len(records),
		"failed_labels", failed)
	c.emit(ctx, events.TypeShardWritten, events.ShardWritten{ShardID: shardID, Records: len(records)})
	return len(records), nil
}

// promote adopts modelID when it is newer than the current model.
func (c *Controller) promote(ctx context.Context, modelID int) bool {
	var previous *int
	if id, ok := c.status.Model(); ok {
		previous = &id
	}

	if !c.status.Promote(modelID) {
		c.logger.Info("discarding stale model",
			"model_id", modelID,
			"current_model_id", previous)
		return false
	}

	c.logger.Info("new model promoted", "model_id", modelID, "previous_model_id", previous)
	c.emit(ctx, events.TypeModelPromoted, events.ModelPromoted{Previous: previous, ModelID: modelID})
	return true
}
