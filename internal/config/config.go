// Package config loads treeflow settings from an optional YAML file and
// TREEFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Worker   WorkerConfig   `yaml:"worker"`
	Flow     FlowConfig     `yaml:"flow"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type FlowConfig struct {
	// AdminGrace is how far ahead of now a cascade seeds registration when
	// an admin accepted a participant whose sponsor never registered.
	AdminGrace time.Duration `yaml:"admin_grace"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	dbPath := "treeflow.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".treeflow", "treeflow.db")
	}
	return Config{
		Database: DatabaseConfig{Path: dbPath},
		Log:      LogConfig{Level: "info", Format: "text"},
		Worker: WorkerConfig{
			PollInterval: 5 * time.Second,
			Concurrency:  2,
			MaxAttempts:  5,
			RetryBackoff: 30 * time.Second,
		},
		Flow:    FlowConfig{AdminGrace: 30 * time.Minute},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from TREEFLOW_* variables. Unparseable values
// are ignored and the previous value kept.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TREEFLOW_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TREEFLOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TREEFLOW_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TREEFLOW_WORKER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Worker.PollInterval = d
		}
	}
	if v := os.Getenv("TREEFLOW_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("TREEFLOW_WORKER_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.MaxAttempts = n
		}
	}
	if v := os.Getenv("TREEFLOW_FLOW_ADMIN_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Flow.AdminGrace = d
		}
	}
	if v, ok := os.LookupEnv("TREEFLOW_METRICS_ADDR"); ok {
		cfg.Metrics.Addr = v
	}
}

func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be at least 1")
	}
	if c.Flow.AdminGrace < 0 {
		return fmt.Errorf("flow.admin_grace must not be negative")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
