package domain

import (
	"encoding/json"
	"fmt"
)

// Structure is a candidate structure produced by the builder and carried
// through the downstream stages. Data is opaque to the scheduler; only the
// molecule ID is used, to route labeling work into its own scratch directory.
type Structure struct {
	MoleculeID string          `json:"moleculeid" validate:"required,printascii,excludesall=/\\"`
	Data       json.RawMessage `json:"data"`
}

// SampleResult is what a sampler returns for one structure. A nil Selection
// means the sampler decided the structure is not worth labeling.
type SampleResult struct {
	Structure Structure       `json:"structure"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

// Selected reports whether the sampler marked the structure for labeling.
func (r SampleResult) Selected() bool {
	return len(r.Selection) > 0 && string(r.Selection) != "null"
}

// ModelHandle identifies a trained model version handed to the sampler.
type ModelHandle struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

// NewModelHandle formats the model path pattern with the model ID.
func NewModelHandle(id int, pathPattern string) ModelHandle {
	return ModelHandle{ID: id, Path: fmt.Sprintf(pathPattern, id)}
}

// TrainRequest describes one training run over the accumulated shards.
type TrainRequest struct {
	Config         StageConfig  `json:"config"`
	DataDir        string       `json:"data_dir"`
	ModelPath      string       `json:"model_path"`
	TrainingID     int          `json:"training_id"`
	Resources      int          `json:"resources"`
	RemoveExisting bool         `json:"remove_existing"`
	BaseModel      *ModelHandle `json:"base_model,omitempty"`
}

// TrainResult is the trainer's report: one success flag per trained network
// and the ID of the model it produced.
type TrainResult struct {
	Success []bool `json:"success"`
	ModelID int    `json:"model_id"`
}

// Succeeded reports whether every network trained successfully. An empty
// flag list is not a success.
func (r TrainResult) Succeeded() bool {
	if len(r.Success) == 0 {
		return false
	}
	for _, ok := range r.Success {
		if !ok {
			return false
		}
	}
	return true
}
