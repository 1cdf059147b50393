package domain

import (
	"fmt"
)

// Status is the durable pipeline record: the next free identifiers and the
// lifetime failure counters of every stage. It is the only state that
// survives a restart; queue contents are never persisted.
//
// Every field only grows. Mutations go through the methods below so that
// the invariant holds regardless of the caller.
type Status struct {
	TrainingID int  `json:"current_training_id"`
	ModelID    *int `json:"current_model_id"`
	ShardID    int  `json:"current_h5_id"`
	MoleculeID int  `json:"current_molecule_id"`

	FailedBuilderTasks int `json:"lifetime_failed_builder_tasks"`
	FailedSamplerTasks int `json:"lifetime_failed_sampler_tasks"`
	FailedLabelerTasks int `json:"lifetime_failed_labeler_tasks"`
	FailedTrainerTasks int `json:"lifetime_failed_trainer_tasks"`
}

// NewStatus returns the status of a pipeline that has never run, given the
// next free training and shard identifiers found on disk. When earlier
// training runs exist the most recent one is assumed to be the current model.
func NewStatus(nextTrainingID, nextShardID int) *Status {
	s := &Status{
		TrainingID: nextTrainingID,
		ShardID:    nextShardID,
	}
	if nextTrainingID > 0 {
		model := nextTrainingID - 1
		s.ModelID = &model
	}
	return s
}

// Validate checks that no identifier or counter is negative.
func (s *Status) Validate() error {
	fields := map[string]int{
		"current_training_id":           s.TrainingID,
		"current_h5_id":                 s.ShardID,
		"current_molecule_id":           s.MoleculeID,
		"lifetime_failed_builder_tasks": s.FailedBuilderTasks,
		"lifetime_failed_sampler_tasks": s.FailedSamplerTasks,
		"lifetime_failed_labeler_tasks": s.FailedLabelerTasks,
		"lifetime_failed_trainer_tasks": s.FailedTrainerTasks,
	}
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrValidation, name, v)
		}
	}
	if s.ModelID != nil && *s.ModelID < 0 {
		return fmt.Errorf("%w: current_model_id is negative (%d)", ErrValidation, *s.ModelID)
	}
	return nil
}

// NextMoleculeID returns the current molecule ID and advances it.
func (s *Status) NextMoleculeID() int {
	id := s.MoleculeID
	s.MoleculeID++
	return id
}

// NextTrainingID returns the current training ID and advances it.
func (s *Status) NextTrainingID() int {
	id := s.TrainingID
	s.TrainingID++
	return id
}

// NextShardID returns the current shard ID and advances it.
func (s *Status) NextShardID() int {
	id := s.ShardID
	s.ShardID++
	return id
}

// RecordFailures adds n failed tasks to the lifetime counter of stage.
// Non-positive counts are ignored.
func (s *Status) RecordFailures(stage Stage, n int) {
	if n <= 0 {
		return
	}
	switch stage {
	case StageBuilder:
		s.FailedBuilderTasks += n
	case StageSampler:
		s.FailedSamplerTasks += n
	case StageLabeler:
		s.FailedLabelerTasks += n
	case StageTrainer:
		s.FailedTrainerTasks += n
	}
}

// Failures returns the lifetime failure counter of stage.
func (s *Status) Failures(stage Stage) int {
	switch stage {
	case StageBuilder:
		return s.FailedBuilderTasks
	case StageSampler:
		return s.FailedSamplerTasks
	case StageLabeler:
		return s.FailedLabelerTasks
	case StageTrainer:
		return s.FailedTrainerTasks
	}
	return 0
}

// HasModel reports whether a trained model has been adopted.
func (s *Status) HasModel() bool {
	return s.ModelID != nil
}

// Model returns the current model ID. The boolean is false while no model
// has been adopted.
func (s *Status) Model() (int, bool) {
	if s.ModelID == nil {
		return 0, false
	}
	return *s.ModelID, true
}

// Promote replaces the current model with candidate if candidate is strictly
// newer. While no model is set any candidate is accepted. It reports whether
// the model changed.
func (s *Status) Promote(candidate int) bool {
	if candidate < 0 {
		return false
	}
	if s.ModelID != nil && candidate <= *s.ModelID {
		return false
	}
	id := candidate
	s.ModelID = &id
	return true
}

// Clone returns a deep copy of the status.
func (s *Status) Clone() *Status {
	c := *s
	if s.ModelID != nil {
		id := *s.ModelID
		c.ModelID = &id
	}
	return &c
}
