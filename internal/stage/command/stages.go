package command

import (
	"context"
	"log/slog"

	"github.com/phrazzld/alpipe/internal/domain"
)

// Builder runs the builder program. Payload: {"id": ...}. Response: a
// structure.
type Builder struct{ r runner }

// NewBuilder creates a command Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{r: runner{stage: domain.StageBuilder, logger: logger}}
}

// Build implements stage.Builder.
func (b *Builder) Build(ctx context.Context, id string, cfg domain.StageConfig) (domain.Structure, error) {
	var out domain.Structure
	err := b.r.run(ctx, cfg, map[string]any{"id": id}, &out)
	return out, err
}

// Sampler runs the sampler program. Payload: {"structure": ..., "model":
// ...}. Response: {"structure": ..., "selection": ...}.
type Sampler struct{ r runner }

// NewSampler creates a command Sampler.
func NewSampler(logger *slog.Logger) *Sampler {
	return &Sampler{r: runner{stage: domain.StageSampler, logger: logger}}
}

// Sample implements stage.Sampler.
func (s *Sampler) Sample(ctx context.Context, st domain.Structure, cfg domain.StageConfig, model domain.ModelHandle) (domain.SampleResult, error) {
	var out domain.SampleResult
	err := s.r.run(ctx, cfg, map[string]any{"structure": st, "model": model}, &out)
	return out, err
}

// Labeler runs the labeler program. Payload: {"structure": ...,
// "scratch_dir": ..., "properties": [...]}. Response: a structure.
type Labeler struct{ r runner }

// NewLabeler creates a command Labeler.
func NewLabeler(logger *slog.Logger) *Labeler {
	return &Labeler{r: runner{stage: domain.StageLabeler, logger: logger}}
}

// Label implements stage.Labeler.
func (l *Labeler) Label(ctx context.Context, st domain.Structure, cfg domain.StageConfig, scratchDir string, properties []string) (domain.Structure, error) {
	var out domain.Structure
	err := l.r.run(ctx, cfg, map[string]any{
		"structure":   st,
		"scratch_dir": scratchDir,
		"properties":  properties,
	}, &out)
	return out, err
}

// Trainer runs the trainer program. Payload: the train request without its
// config, which travels in the envelope. Response: {"success": [...],
// "model_id": ...}.
type Trainer struct{ r runner }

// NewTrainer creates a command Trainer.
func NewTrainer(logger *slog.Logger) *Trainer {
	return &Trainer{r: runner{stage: domain.StageTrainer, logger: logger}}
}

// Train implements stage.Trainer.
func (t *Trainer) Train(ctx context.Context, req domain.TrainRequest) (domain.TrainResult, error) {
	cfg := req.Config
	req.Config = nil
	var out domain.TrainResult
	err := t.r.run(ctx, cfg, req, &out)
	return out, err
}
