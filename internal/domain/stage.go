package domain

import "fmt"

// Stage identifies one of the four pipeline stages.
type Stage string

// Pipeline stages in the order records flow through them.
const (
	StageBuilder Stage = "builder"
	StageSampler Stage = "sampler"
	StageLabeler Stage = "labeler"
	StageTrainer Stage = "trainer"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageBuilder, StageSampler, StageLabeler, StageTrainer}

// ParseStage converts a stage name into a Stage.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// StageConfig is the opaque, stage-specific configuration handed to a stage
// implementation. The scheduler never interprets its content.
type StageConfig map[string]any

// String returns the value stored under key if it is a string.
func (c StageConfig) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Strings returns the value stored under key as a string slice. Lists decoded
// from configuration files arrive as []any and are converted element-wise.
func (c StageConfig) Strings(key string) ([]string, bool) {
	switch v := c[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
