// Package config provides a reusable loader for axiograph configuration
// files and environment variables. It is versioned so that commands and
// services can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"axiograph/core/index"
	"axiograph/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for an axiograph node: where its
// snapshot store lives on disk, how its indexes are tuned, how long a
// query is allowed to run, and how it logs. It mirrors the structure of
// the YAML files under config/.
type Config struct {
	Store struct {
		Root    string `mapstructure:"root" json:"root"`
		LockDir string `mapstructure:"lock_dir" json:"lock_dir"`
	} `mapstructure:"store" json:"store"`

	Index struct {
		PathIndexDepth   int `mapstructure:"path_index_depth" json:"path_index_depth"`
		PathIndexMinLen  int `mapstructure:"path_index_min_len" json:"path_index_min_len"`
		PathLRUCapacity  int `mapstructure:"path_lru_capacity" json:"path_lru_capacity"`
		WarmupQueueSize  int `mapstructure:"warmup_queue_size" json:"warmup_queue_size"`
		FuzzyMaxDistance int `mapstructure:"fuzzy_max_distance" json:"fuzzy_max_distance"`
	} `mapstructure:"index" json:"index"`

	Query struct {
		DeadlineMS int `mapstructure:"deadline_ms" json:"deadline_ms"`
	} `mapstructure:"query" json:"query"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the AXI_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("AXI_ENV", ""))
}

// IndexConfig translates the Index section into an index.Config, filling
// any zero field with index.DefaultConfig's values via WithDefaults.
func (c Config) IndexConfig() index.Config {
	return index.Config{
		PathIndexDepth:   c.Index.PathIndexDepth,
		PathIndexMinLen:  c.Index.PathIndexMinLen,
		PathLRUCapacity:  c.Index.PathLRUCapacity,
		WarmupQueueSize:  c.Index.WarmupQueueSize,
		FuzzyMaxDistance: c.Index.FuzzyMaxDistance,
	}.WithDefaults()
}

// QueryDeadline returns the configured query deadline, or 0 (no deadline)
// when Query.DeadlineMS is unset.
func (c Config) QueryDeadline() time.Duration {
	if c.Query.DeadlineMS <= 0 {
		return 0
	}
	return time.Duration(c.Query.DeadlineMS) * time.Millisecond
}
