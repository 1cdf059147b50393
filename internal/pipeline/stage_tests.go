package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/phrazzld/alpipe/internal/domain"
)

// ErrNoModel is returned when a sampler test is requested before any model
// has been trained.
var ErrNoModel = errors.New("a trained model is required")

// StageTests selects the stages exercised by RunStageTests.
type StageTests struct {
	Builder bool
	Sampler bool
	Labeler bool
	Trainer bool
}

// Any reports whether at least one stage test is selected.
func (t StageTests) Any() bool {
	return t.Builder || t.Sampler || t.Labeler || t.Trainer
}

// RunStageTests runs each selected stage once and prints its output to out.
// The builder always runs when the sampler or labeler is tested, since its
// structure is their input; the sampler output replaces it when both run.
func (c *Controller) RunStageTests(ctx context.Context, tests StageTests, out io.Writer) error {
	snap := c.reloader.Current()
	paths := snap.Master.ResolvedPaths()

	var current domain.Structure
	if tests.Builder || tests.Sampler || tests.Labeler {
		s, err := runOne(ctx, c.q.builder, buildJob{ID: "test_builder", Config: snap.Builder})
		if err != nil {
			return fmt.Errorf("builder test: %w", err)
		}
		if err := c.checker.Check(s); err != nil {
			return fmt.Errorf("builder test: %w", err)
		}
		if err := printResult(out, domain.StageBuilder, s); err != nil {
			return err
		}
		current = s
	}

	if tests.Sampler {
		model, ok := c.status.Model()
		if !ok {
			return fmt.Errorf("sampler test: %w", ErrNoModel)
		}
		r, err := runOne(ctx, c.q.sampler, sampleJob{
			Structure: current,
			Config:    snap.Sampler,
			Model:     domain.NewModelHandle(model, paths.ModelPath),
		})
		if err != nil {
			return fmt.Errorf("sampler test: %w", err)
		}
		if err := c.checker.Check(r.Structure); err != nil {
			return fmt.Errorf("sampler test: %w", err)
		}
		if err := printResult(out, domain.StageSampler, r); err != nil {
			return err
		}
		current = r.Structure
	}

	if tests.Labeler {
		s, err := runOne(ctx, c.q.labeler, newLabelJob(current, snap, paths))
		if err != nil {
			return fmt.Errorf("labeler test: %w", err)
		}
		if err := c.checker.Check(s); err != nil {
			return fmt.Errorf("labeler test: %w", err)
		}
		if err := printResult(out, domain.StageLabeler, s); err != nil {
			return err
		}
	}

	if tests.Trainer {
		req := domain.TrainRequest{
			Config:     snap.Trainer,
			DataDir:    paths.DataDir,
			ModelPath:  paths.ModelPath,
			TrainingID: c.status.NextTrainingID(),
			Resources:  snap.Master.TrainerResources,
		}
		if err := c.persist(ctx); err != nil {
			return err
		}
		r, err := runOne(ctx, c.q.trainer, req)
		if err != nil {
			return fmt.Errorf("trainer test: %w", err)
		}
		if err := printResult(out, domain.StageTrainer, r); err != nil {
			return err
		}
	}

	return nil
}

func printResult(out io.Writer, stage domain.Stage, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s result: %w", stage, err)
	}
	_, err = fmt.Fprintf(out, "%s test returned:\n%s\n", stage, data)
	return err
}
