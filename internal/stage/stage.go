package stage

import (
	"context"

	"github.com/phrazzld/alpipe/internal/domain"
)

// Builder generates one candidate structure for the given identifier.
type Builder interface {
	Build(ctx context.Context, id string, cfg domain.StageConfig) (domain.Structure, error)
}

// Sampler scores a structure against the current model and decides whether
// it should be labeled.
type Sampler interface {
	Sample(ctx context.Context, s domain.Structure, cfg domain.StageConfig, model domain.ModelHandle) (domain.SampleResult, error)
}

// Labeler runs the reference computation for a structure inside scratchDir
// and returns the structure with the requested properties attached.
type Labeler interface {
	Label(ctx context.Context, s domain.Structure, cfg domain.StageConfig, scratchDir string, properties []string) (domain.Structure, error)
}

// Trainer (re)trains the model from the shards in the request's data
// directory.
type Trainer interface {
	Train(ctx context.Context, req domain.TrainRequest) (domain.TrainResult, error)
}

// Checker validates a structure before it crosses a stage boundary. A
// rejection is returned as an error wrapping domain.ErrInvalidStructure.
type Checker interface {
	Check(s domain.Structure) error
}

// Set is one resolved implementation per stage.
type Set struct {
	Builder Builder
	Sampler Sampler
	Labeler Labeler
	Trainer Trainer
	Checker Checker
}
