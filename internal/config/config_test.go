package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "gpt-4o-mini", cfg.Routing.DefaultModel)
	assert.Equal(t, 5*time.Minute, cfg.Routing.CredentialCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Routing.ChainCacheTTL)
	assert.Equal(t, time.Minute, cfg.Routing.SweepInterval)
	assert.Equal(t, 50, cfg.Analytics.BatchSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "test")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("ROUTING_DEFAULT_MODEL", "deepseek-chat")
	t.Setenv("ROUTING_CONTEXT_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "test", cfg.Server.Env)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "deepseek-chat", cfg.Routing.DefaultModel)
	assert.Equal(t, 30*time.Second, cfg.Routing.ContextTTL)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	configContent := `
database:
  dsn: "file:routes.db"
routing:
  default_model: "claude-sonnet-4-20250514"
  chain_cache_ttl: 2m
rate_limit:
  requests_per_second: 50
  burst: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "file:routes.db", cfg.Database.DSN)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Routing.DefaultModel)
	assert.Equal(t, 2*time.Minute, cfg.Routing.ChainCacheTTL)
	assert.Equal(t, 50.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 100, cfg.RateLimit.Burst)
}

func TestLoadConfig_BadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := LoadConfig()
	assert.Error(t, err)
}
