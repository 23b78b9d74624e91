// Package common provides shared utilities for Optimus: configuration,
// logging, versioning, and the startup banner.
package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the static deployment parameters loaded once at process
// start. Per-job values (timeouts, test counts) live in the request itself,
// not here.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Store       StoreConfig   `toml:"store"`
	Logging     LoggingConfig `toml:"logging"`
	Worker      WorkerConfig  `toml:"worker"`
}

// ServerConfig holds HTTP front-end configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig holds the key/value store connection.
type StoreConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level    string `toml:"level"`
	FilePath string `toml:"file_path"`
}

// WorkerConfig holds process-wide worker defaults. Binding fields
// (Language, Queue, Image) are deliberately absent here — per §6 those are
// sourced from environment variables (or the `run` flags that default to
// them), never from this file, so a config-file value can never satisfy
// the worker-binding check.
type WorkerConfig struct {
	MaxParallelJobs  int `toml:"max_parallel_jobs"`
	MaxParallelTests int `toml:"max_parallel_tests"`
}

// IsProduction reports whether the environment is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewDefaultConfig returns a Config with sane defaults for local/dev use.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Host: "0.0.0.0", Port: 8080},
		Store:       StoreConfig{Addr: "localhost:6379", DB: 0},
		Logging:     LoggingConfig{Level: "info"},
		Worker:      WorkerConfig{MaxParallelJobs: 4, MaxParallelTests: 1},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
// when the path is empty or the file does not exist. Environment variables
// listed below always win over file values, mirroring the teacher's
// file-then-env-override layering.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides layers OPTIMUS_* environment variables on top of
// whatever was loaded from disk.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("OPTIMUS_REDIS_ADDR"); v != "" {
		config.Store.Addr = v
	}
	if v := os.Getenv("OPTIMUS_REDIS_PASSWORD"); v != "" {
		config.Store.Password = v
	}
	if v := os.Getenv("OPTIMUS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("OPTIMUS_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("OPTIMUS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("MAX_PARALLEL_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.MaxParallelJobs = n
		}
	}
	if v := os.Getenv("MAX_PARALLEL_TESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Worker.MaxParallelTests = n
		}
	}
}

// ResultTTL is the retention window for result/status/control keys (§3).
const ResultTTL = 24 * time.Hour

// IdleBlockDuration is the worker's block-pop idle budget (§4.E).
const IdleBlockDuration = 5 * time.Second

// PopErrorBackoff is the worker's backoff after a pop error (§4.E).
const PopErrorBackoff = 1 * time.Second
