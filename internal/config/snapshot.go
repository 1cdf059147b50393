package config

import (
	"errors"
	"fmt"

	"github.com/phrazzld/alpipe/internal/domain"
)

// ErrReload is returned by Reloader.Refresh when the new configuration could
// not be loaded and the previous one was kept.
var ErrReload = errors.New("configuration reload failed")

// Snapshot is the complete configuration used for one tick. It is never
// mutated after loading; a reload produces a new Snapshot.
type Snapshot struct {
	Master  *Config
	Builder domain.StageConfig
	Sampler domain.StageConfig
	Labeler domain.StageConfig
	Trainer domain.StageConfig
}

// Stage returns the opaque configuration of stage.
func (s *Snapshot) Stage(stage domain.Stage) domain.StageConfig {
	switch stage {
	case domain.StageSampler:
		return s.Sampler
	case domain.StageLabeler:
		return s.Labeler
	case domain.StageTrainer:
		return s.Trainer
	default:
		return s.Builder
	}
}

// LoadSnapshot loads the master configuration at path and the four stage
// configurations it references.
func LoadSnapshot(path string) (*Snapshot, error) {
	master, err := Load(path)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Master: master}
	targets := map[domain.Stage]*domain.StageConfig{
		domain.StageBuilder: &snap.Builder,
		domain.StageSampler: &snap.Sampler,
		domain.StageLabeler: &snap.Labeler,
		domain.StageTrainer: &snap.Trainer,
	}
	for _, stage := range domain.Stages {
		cfg, err := LoadStage(master.Stages.Get(stage).ConfigPath, master.MasterDirectory)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		*targets[stage] = cfg
	}

	return snap, nil
}

// StartupOnlyChanges lists the settings that differ between prev and next
// but only take effect on restart: logging, stage strategies and pool sizes,
// the status store and the status server address.
func StartupOnlyChanges(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}

	var changed []string
	diff := func(name string, a, b any) {
		if a != b {
			changed = append(changed, name)
		}
	}

	diff("log_level", prev.LogLevel, next.LogLevel)
	diff("log_format", prev.LogFormat, next.LogFormat)
	for _, stage := range domain.Stages {
		a, b := prev.Stages.Get(stage), next.Stages.Get(stage)
		prefix := "stages." + stage.String() + "."
		diff(prefix+"task", a.Task, b.Task)
		diff(prefix+"workers", a.Workers, b.Workers)
		diff(prefix+"queue_size", a.QueueSize, b.QueueSize)
	}
	diff("status_store", prev.StatusStore, next.StatusStore)
	diff("http.listen_addr", prev.HTTP.ListenAddr, next.HTTP.ListenAddr)

	return changed
}

// LoadFunc produces a fresh Snapshot.
type LoadFunc func() (*Snapshot, error)

// Reloader is the single place where a configuration reload may fail. A
// failed reload keeps the previous Snapshot in force.
//
// A Reloader is used from the control goroutine only.
type Reloader struct {
	load     LoadFunc
	current  *Snapshot
	failures int
}

// NewReloader creates a Reloader starting from initial.
func NewReloader(initial *Snapshot, load LoadFunc) *Reloader {
	return &Reloader{
		load:    load,
		current: initial,
	}
}

// Current returns the Snapshot in force.
func (r *Reloader) Current() *Snapshot {
	return r.current
}

// Failures returns how many reload attempts have failed.
func (r *Reloader) Failures() int {
	return r.failures
}

// Refresh attempts to load a new Snapshot. On success the new Snapshot is
// returned and becomes current. On failure the previous Snapshot is
// returned together with an error wrapping ErrReload.
func (r *Reloader) Refresh() (*Snapshot, error) {
	next, err := r.load()
	if err == nil && next == nil {
		err = errors.New("loader returned no configuration")
	}
	if err != nil {
		r.failures++
		return r.current, fmt.Errorf("%w: %v", ErrReload, err)
	}

	r.current = next
	return next, nil
}
