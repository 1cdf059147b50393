package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. ALPIPE_THRESHOLDS_BOOTSTRAP_SET_SIZE.
const EnvPrefix = "ALPIPE"

// ErrValidation is returned when the loaded configuration is invalid.
var ErrValidation = errors.New("validation failed")

// setDefaults registers a default for every key so that each one can also be
// supplied through the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("tick_interval", "60s")
	v.SetDefault("master_directory", "")

	for _, stage := range domain.Stages {
		prefix := "stages." + stage.String() + "."
		v.SetDefault(prefix+"task", "command")
		v.SetDefault(prefix+"config_path", stage.String()+".yaml")
		v.SetDefault(prefix+"workers", 1)
		v.SetDefault(prefix+"queue_size", 1024)
	}

	v.SetDefault("thresholds.parallel_builders", 8)
	v.SetDefault("thresholds.parallel_samplers", 8)
	v.SetDefault("thresholds.target_queued_labels", 16)
	v.SetDefault("thresholds.min_builder_batch", 0)
	v.SetDefault("thresholds.min_sampler_batch", 0)
	v.SetDefault("thresholds.save_shard_threshold", 100)
	v.SetDefault("thresholds.bootstrap_set_size", 100)

	v.SetDefault("paths.status_path", "status.json")
	v.SetDefault("paths.shard_path", "data/shard-%04d.json")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.model_path", "models/model-%04d")
	v.SetDefault("paths.scratch_dir", "scratch")

	v.SetDefault("properties", []string{"energy", "forces"})
	v.SetDefault("trainer_resources", 1)

	v.SetDefault("status_store.backend", "file")
	v.SetDefault("status_store.database_url", "")
	v.SetDefault("status_store.redis_addr", "")
	v.SetDefault("status_store.key", "alpipe:status")
	v.SetDefault("status_store.history_limit", 10000)

	v.SetDefault("http.listen_addr", "")
}

// Load reads the master configuration from path (YAML, JSON or TOML, by
// extension) and from ALPIPE_ environment variables. Environment variables
// take precedence over values from the file. An empty path loads defaults
// and environment only.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &cfg, nil
}

// LoadStage reads an opaque stage configuration file. Relative paths are
// resolved against masterDir when it is set. Keys keep their case, so the
// file is decoded as YAML (a superset of JSON) rather than through viper.
func LoadStage(path, masterDir string) (domain.StageConfig, error) {
	resolved := ResolvePath(path, masterDir)

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage config %s: %w", resolved, err)
	}

	cfg := domain.StageConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse stage config %s: %w", resolved, err)
	}

	return cfg, nil
}

// ResolvePath joins a relative path onto masterDir. Absolute paths and an
// empty masterDir leave path unchanged.
func ResolvePath(path, masterDir string) string {
	if masterDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(masterDir, path)
}
