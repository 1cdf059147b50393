package config

import (
	"time"

	"github.com/phrazzld/alpipe/internal/domain"
)

// Config holds the master configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	TickInterval    time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	MasterDirectory string        `mapstructure:"master_directory"`

	Stages     StagesConfig `mapstructure:"stages"`
	Thresholds Thresholds   `mapstructure:"thresholds"`
	Paths      PathsConfig  `mapstructure:"paths"`

	// Properties lists what the labeler must compute for each structure.
	Properties []string `mapstructure:"properties" validate:"required,min=1,dive,required"`

	// TrainerResources is the resource count (e.g. GPUs per node) handed to the trainer.
	TrainerResources int `mapstructure:"trainer_resources" validate:"gte=1"`

	StatusStore StatusStoreConfig `mapstructure:"status_store"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

// StageSettings selects and sizes the implementation of one stage.
// Task, Workers and QueueSize are read at startup only.
type StageSettings struct {
	Task       string `mapstructure:"task" validate:"required"`
	ConfigPath string `mapstructure:"config_path" validate:"required"`
	Workers    int    `mapstructure:"workers" validate:"gte=1"`
	QueueSize  int    `mapstructure:"queue_size" validate:"gte=0"`
}

// StagesConfig contains the settings of every stage.
type StagesConfig struct {
	Builder StageSettings `mapstructure:"builder"`
	Sampler StageSettings `mapstructure:"sampler"`
	Labeler StageSettings `mapstructure:"labeler"`
	Trainer StageSettings `mapstructure:"trainer"`
}

// Get returns the settings of stage.
func (s StagesConfig) Get(stage domain.Stage) StageSettings {
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

// Thresholds is the admission-control configuration consulted on every tick.
type Thresholds struct {
	// ParallelBuilders is the builder queue size kept during bootstrap.
	ParallelBuilders int `mapstructure:"parallel_builders" validate:"gte=1"`

	// ParallelSamplers is the combined builder and sampler queue size kept in steady state.
	ParallelSamplers int `mapstructure:"parallel_samplers" validate:"gte=1"`

	// TargetQueuedLabels pauses new builder work while this many labeling tasks are running.
	TargetQueuedLabels int `mapstructure:"target_queued_labels" validate:"gte=1"`

	// MinBuilderBatch is the number of finished builder tasks that must be
	// exceeded before bootstrap structures are sent to the labeler.
	MinBuilderBatch int `mapstructure:"min_builder_batch" validate:"gte=0"`

	// MinSamplerBatch is the number of finished sampler tasks that must be
	// exceeded before selected structures are sent to the labeler.
	MinSamplerBatch int `mapstructure:"min_sampler_batch" validate:"gte=0"`

	// SaveShardThreshold is the number of finished labeling tasks that must be
	// exceeded before a shard is written and a training run is started.
	SaveShardThreshold int `mapstructure:"save_shard_threshold" validate:"gte=0"`

	// BootstrapSetSize is the number of finished labeling tasks collected
	// into the first shard.
	BootstrapSetSize int `mapstructure:"bootstrap_set_size" validate:"gte=1"`
}

// PathsConfig contains file system locations. ShardPath and ModelPath are
// printf patterns taking a single integer identifier.
type PathsConfig struct {
	StatusPath string `mapstructure:"status_path" validate:"required"`
	ShardPath  string `mapstructure:"shard_path" validate:"required,contains=%"`
	DataDir    string `mapstructure:"data_dir" validate:"required"`
	ModelPath  string `mapstructure:"model_path" validate:"required,contains=%"`
	ScratchDir string `mapstructure:"scratch_dir" validate:"required"`
}

// Resolve returns a copy of p with relative paths joined onto masterDir.
func (p PathsConfig) Resolve(masterDir string) PathsConfig {
	return PathsConfig{
		StatusPath: ResolvePath(p.StatusPath, masterDir),
		ShardPath:  ResolvePath(p.ShardPath, masterDir),
		DataDir:    ResolvePath(p.DataDir, masterDir),
		ModelPath:  ResolvePath(p.ModelPath, masterDir),
		ScratchDir: ResolvePath(p.ScratchDir, masterDir),
	}
}

// ResolvedPaths returns Paths resolved against MasterDirectory.
func (c *Config) ResolvedPaths() PathsConfig {
	return c.Paths.Resolve(c.MasterDirectory)
}

// StatusStoreConfig selects where the pipeline status record is persisted.
type StatusStoreConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=file postgres redis"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	RedisAddr   string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`

	// Key names the record in the postgres and redis backends, so several
	// runs can share one server.
	Key string `mapstructure:"key" validate:"required"`

	// HistoryLimit bounds the status history kept by the postgres backend.
	// Zero keeps every entry.
	HistoryLimit int `mapstructure:"history_limit" validate:"gte=0"`
}

// HTTPConfig configures the read-only status server. An empty ListenAddr
// disables it.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}
