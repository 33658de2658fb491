package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
fetch:
  host_gap_ms: 2000
  attempts: 5
  timeout_seconds: 45
discovery:
  default_limit: 8
  max_limit: 20
  providers: ["bing"]
  synthetic_fallback: false
quality:
  min_table_score: 25
storage:
  driver: sqlite
  dsn: file:setops.db
  archive_bucket: raw-sources
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 2*time.Second, cfg.HostGap())
	require.Equal(t, 5, cfg.Fetch.Attempts)
	require.Equal(t, 45*time.Second, cfg.RequestBudget())
	require.Equal(t, []string{"bing"}, cfg.Discovery.Providers)
	require.False(t, cfg.Discovery.SyntheticFallback)
	require.InDelta(t, 25.0, cfg.Quality.MinTableScore, 0.001)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "raw-sources", cfg.Storage.ArchiveBucket)
	require.False(t, cfg.Logging.Development)
	// defaults survive partial overrides
	require.Equal(t, 300, cfg.Fetch.BackoffBaseMs)
	require.Equal(t, "sources", cfg.Storage.ArchivePrefix)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1200*time.Millisecond, cfg.HostGap())
	require.Equal(t, 3, cfg.Fetch.Attempts)
	require.Equal(t, 3000, cfg.Fetch.BackoffMaxMs)
	require.Equal(t, 12, cfg.Discovery.DefaultLimit)
	require.Equal(t, 30, cfg.Discovery.MaxLimit)
	require.Equal(t, []string{"duckduckgo", "bing"}, cfg.Discovery.Providers)
	require.True(t, cfg.Discovery.SyntheticFallback)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Contains(t, cfg.Fetch.UserAgent, "TenKingsSetOps/1.0")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SETOPS_SERVER_PORT", "7070")
	t.Setenv("SETOPS_FETCH_ATTEMPTS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2, cfg.Fetch.Attempts)
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"attempts", func(c *Config) { c.Fetch.Attempts = 0 }, "fetch.attempts"},
		{"timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "fetch.timeout_seconds"},
		{"limits", func(c *Config) { c.Discovery.MaxLimit = 1 }, "discovery limits"},
		{"ratio", func(c *Config) { c.Quality.MinAcceptRatio = 2 }, "min_accept_ratio"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "not supported"},
		{"dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"auth", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }, "auth.api_key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
