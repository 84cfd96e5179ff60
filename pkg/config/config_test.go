package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "bolt://localhost:7687", cfg.Store.URI)
	assert.Equal(t, 50, cfg.Store.MaxConnectionPoolSize)
	assert.Equal(t, 30*time.Second, cfg.Store.ConnectionTimeout)
	assert.Equal(t, 1, cfg.Session.DefaultDepth)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
logLevel: warn
store:
  uri: neo4j://db.internal:7687
  username: app
  database: movies
session:
  defaultDepth: -1
enableMetrics: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "neo4j://db.internal:7687", cfg.Store.URI)
	assert.Equal(t, "app", cfg.Store.Username)
	assert.Equal(t, "movies", cfg.Store.Database)
	assert.Equal(t, -1, cfg.Session.DefaultDepth)
	assert.True(t, cfg.EnableMetrics)
	assert.True(t, cfg.IsProduction())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRAPHOM_STORE_URI", "neo4j://override:7687")
	t.Setenv("GRAPHOM_LOG_LEVEL", "debug")
	t.Setenv("GRAPHOM_STORE_POOL_SIZE", "10")
	t.Setenv("GRAPHOM_DEFAULT_DEPTH", "0")
	t.Setenv("GRAPHOM_ENABLE_TRACING", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "neo4j://override:7687", cfg.Store.URI)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Store.MaxConnectionPoolSize)
	assert.Equal(t, 0, cfg.Session.DefaultDepth)
	assert.True(t, cfg.EnableTracing)
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty store uri", mutate: func(c *Config) { c.Store.URI = "" }},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "verbose" }},
		{name: "depth below unbounded", mutate: func(c *Config) { c.Session.DefaultDepth = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
