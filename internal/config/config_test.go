package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Flow.AdminGrace)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treeflow.yaml")
	yml := `
database:
  path: /tmp/flows.db
log:
  level: debug
  format: json
worker:
  poll_interval: 250ms
  concurrency: 4
flow:
  admin_grace: 45m
metrics:
  addr: ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flows.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts, "unset keys keep defaults")
	assert.Equal(t, 45*time.Minute, cfg.Flow.AdminGrace)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 4\n"), 0o644))

	t.Setenv("TREEFLOW_WORKER_CONCURRENCY", "8")
	t.Setenv("TREEFLOW_DB", "/var/lib/treeflow.db")
	t.Setenv("TREEFLOW_FLOW_ADMIN_GRACE", "10m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "/var/lib/treeflow.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Minute, cfg.Flow.AdminGrace)
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	t.Setenv("TREEFLOW_WORKER_CONCURRENCY", "lots")
	t.Setenv("TREEFLOW_WORKER_POLL_INTERVAL", "-3s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "log.format")

	require.NoError(t, os.WriteFile(path, []byte("worker: [not a map"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "flow_id", "f1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"flow_id":"f1"`)
}
