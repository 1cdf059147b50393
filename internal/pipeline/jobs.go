package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/stage"
	"github.com/phrazzld/alpipe/internal/task"
)

type buildJob struct {
	ID     string
	Config domain.StageConfig
}

type sampleJob struct {
	Structure domain.Structure
	Config    domain.StageConfig
	Model     domain.ModelHandle
}

type labelJob struct {
	Structure  domain.Structure
	Config     domain.StageConfig
	ScratchDir string
	Properties []string
}

// newLabelJob places the labeling scratch space for s under the scratch
// directory, one subdirectory per molecule.
func newLabelJob(s domain.Structure, snap *config.Snapshot, paths config.PathsConfig) labelJob {
	return labelJob{
		Structure:  s,
		Config:     snap.Labeler,
		ScratchDir: filepath.Join(paths.ScratchDir, s.MoleculeID),
		Properties: append([]string(nil), snap.Master.Properties...),
	}
}

// Executors is the executor each stage queue submits its tasks to.
type Executors struct {
	Builder task.Executor
	Sampler task.Executor
	Labeler task.Executor
	Trainer task.Executor
}

type queues struct {
	builder *task.Queue[buildJob, domain.Structure]
	sampler *task.Queue[sampleJob, domain.SampleResult]
	labeler *task.Queue[labelJob, domain.Structure]
	trainer *task.Queue[domain.TrainRequest, domain.TrainResult]
}

func newQueues(set stage.Set, exec Executors, logger *slog.Logger) queues {
	return queues{
		builder: task.NewQueue(domain.StageBuilder.String(), exec.Builder,
			func(ctx context.Context, j buildJob) (domain.Structure, error) {
				return set.Builder.Build(ctx, j.ID, j.Config)
			}, logger),
		sampler: task.NewQueue(domain.StageSampler.String(), exec.Sampler,
			func(ctx context.Context, j sampleJob) (domain.SampleResult, error) {
				return set.Sampler.Sample(ctx, j.Structure, j.Config, j.Model)
			}, logger),
		labeler: task.NewQueue(domain.StageLabeler.String(), exec.Labeler,
			func(ctx context.Context, j labelJob) (domain.Structure, error) {
				return set.Labeler.Label(ctx, j.Structure, j.Config, j.ScratchDir, j.Properties)
			}, logger),
		trainer: task.NewQueue(domain.StageTrainer.String(), exec.Trainer,
			func(ctx context.Context, req domain.TrainRequest) (domain.TrainResult, error) {
				return set.Trainer.Train(ctx, req)
			}, logger),
	}
}

// reports returns the counts of the queues active in phase. Bootstrap only
// uses the builder and labeler queues.
func (q queues) reports(bootstrap bool) []task.Report {
	if bootstrap {
		return []task.Report{q.builder.Report(), q.labeler.Report()}
	}
	return []task.Report{
		q.builder.Report(),
		q.sampler.Report(),
		q.labeler.Report(),
		q.trainer.Report(),
	}
}

// runOne submits a single task, waits for it and removes it from q.
func runOne[P, R any](ctx context.Context, q *task.Queue[P, R], payload P) (R, error) {
	t := q.AddTask(payload)
	result, err := t.Wait(ctx)
	if ctx.Err() == nil {
		q.CollectResults()
	}
	return result, err
}
