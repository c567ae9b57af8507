// Package config loads and validates the zgrid TOML configuration shared by
// the coordinator daemon, the worker pool, and the CLI.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const Version = "0.1.0"

type Config struct {
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	Coordinator CoordinatorConfig `toml:"coordinator"`
	Worker      WorkerConfig      `toml:"worker"`
	Mdb         MdbConfig         `toml:"mdb"`

	// Resolved at runtime (not in TOML).
	BaseDir string `toml:"-"`
}

type CoordinatorConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LockFile string `toml:"lock_file"`
}

// Address is the coordinator's listen (and dial) address.
func (c CoordinatorConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WorkerConfig struct {
	// CoordinatorURL is the base URL workers and CLI commands dial.
	CoordinatorURL string `toml:"coordinator_url"`
	MaxWorkers     int    `toml:"max_workers"`
	PollInterval   string `toml:"poll_interval"`
	// RunnerURL is the job-runner service for py_function work; empty
	// means function jobs are rejected by this worker.
	RunnerURL string `toml:"runner_url"`
	LogDir    string `toml:"log_dir"`
}

type MdbConfig struct {
	// RegistryPath is the table-version registry database.
	RegistryPath string `toml:"registry_path"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg)
	return cfg, nil
}

// Default returns a usable configuration when no config file exists.
func Default() *Config {
	cfg := &Config{BaseDir: "."}
	applyDefaults(cfg)
	applyEnv(cfg)
	resolvePaths(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		if d, err := DataDir(); err == nil {
			cfg.DataDir = filepath.Join(d, "data")
		} else {
			cfg.DataDir = "data"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Coordinator.Host == "" {
		cfg.Coordinator.Host = "127.0.0.1"
	}
	if cfg.Coordinator.Port == 0 {
		cfg.Coordinator.Port = 8734
	}
	if cfg.Coordinator.LockFile == "" {
		if d, err := StateDir(); err == nil {
			cfg.Coordinator.LockFile = filepath.Join(d, "coordinator.lock")
		} else {
			cfg.Coordinator.LockFile = "coordinator.lock"
		}
	}
	if cfg.Worker.CoordinatorURL == "" {
		cfg.Worker.CoordinatorURL = "http://" + cfg.Coordinator.Address()
	}
	if cfg.Worker.MaxWorkers == 0 {
		cfg.Worker.MaxWorkers = 2
	}
	if cfg.Worker.PollInterval == "" {
		cfg.Worker.PollInterval = "2s"
	}
	if cfg.Mdb.RegistryPath == "" {
		if d, err := DataDir(); err == nil {
			cfg.Mdb.RegistryPath = filepath.Join(d, "registry.db")
		} else {
			cfg.Mdb.RegistryPath = "registry.db"
		}
	}
}

// applyEnv lets the environment override the dial addresses, which is what
// deployments most often need to change.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ZGRID_COORDINATOR_URL"); v != "" {
		cfg.Worker.CoordinatorURL = v
	}
	if v := os.Getenv("ZGRID_RUNNER_URL"); v != "" {
		cfg.Worker.RunnerURL = v
	}
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %q", cfg.LogLevel)
	}
	if cfg.Coordinator.Port < 1 || cfg.Coordinator.Port > 65535 {
		return fmt.Errorf("invalid coordinator.port %d", cfg.Coordinator.Port)
	}
	if _, err := time.ParseDuration(cfg.Worker.PollInterval); err != nil {
		return fmt.Errorf("invalid worker.poll_interval %q: %w", cfg.Worker.PollInterval, err)
	}
	if cfg.Worker.MaxWorkers < 1 {
		return fmt.Errorf("worker.max_workers must be at least 1, got %d", cfg.Worker.MaxWorkers)
	}
	return nil
}

func resolvePaths(cfg *Config) {
	cfg.DataDir = absPath(cfg.BaseDir, cfg.DataDir)
	cfg.Coordinator.LockFile = absPath(cfg.BaseDir, cfg.Coordinator.LockFile)
	cfg.Mdb.RegistryPath = absPath(cfg.BaseDir, cfg.Mdb.RegistryPath)
	if cfg.LogFile != "" {
		cfg.LogFile = absPath(cfg.BaseDir, cfg.LogFile)
	}
	if cfg.Worker.LogDir != "" {
		cfg.Worker.LogDir = absPath(cfg.BaseDir, cfg.Worker.LogDir)
	}
}

func absPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// PollInterval parses the validated worker poll interval.
func (cfg *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(cfg.Worker.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func (cfg *Config) SlogLevel() slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
