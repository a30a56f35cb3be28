package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 20*time.Second, cfg.Sync.SoftTimeLimit)
	assert.Equal(t, 3, cfg.Upstream.MaxRetries)
	assert.Equal(t, time.Second, cfg.Upstream.RetryBaseDelay)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CASESYNC_BASE_URL", "https://catalog.test")
	t.Setenv("CASESYNC_API_TOKEN", "secret-token")
	t.Setenv("CASESYNC_BATCH_SIZE", "25")
	t.Setenv("CASESYNC_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://catalog.test", cfg.Upstream.BaseURL)
	assert.Equal(t, "secret-token", cfg.Upstream.APIToken)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("CASESYNC_BATCH_SIZE", "not-a-number")
	t.Setenv("CASESYNC_REQUESTS_PER_MINUTE", "-5")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
upstream:
  base_url: https://catalog.example.org
  request_timeout: 10s
sync:
  batch_size: 10
  page_size: 20
store:
  driver: memory
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://catalog.example.org", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, 20, cfg.Sync.PageSize)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.LoadFromFile(""))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"zero batch size", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"negative retries", func(c *Config) { c.Upstream.MaxRetries = -1 }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero requests per minute", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"base-url":   "https://override.test",
		"batch-size": 5,
		"log-level":  "error",
	})

	assert.Equal(t, "https://override.test", cfg.Upstream.BaseURL)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Sync.BatchSize = 77
	require.NoError(t, cfg.Save(path))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 77, reloaded.Sync.BatchSize)
}
