package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.InDelta(t, 1.0, cfg.Engine.Weights.Sum(), 0.01)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  pretty: true
server:
  addr: ":9090"
engine:
  smoothing_factor: 0.2
  weights:
    technical: 0.40
    momentum: 0.30
    volume: 0.15
    risk: 0.15
redis:
  addr: "redis:6379"
  enable_cache: true
  cache_ttl: 45s
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 0.2, cfg.Engine.SmoothingFactor)
	assert.Equal(t, 0.40, cfg.Engine.Weights.Technical)
	assert.True(t, cfg.Redis.EnableCache)
	assert.Equal(t, 45*time.Second, cfg.Redis.CacheTTL)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Engine.OverallTimeout)
}

func TestLoad_RejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
engine:
  weights:
    technical: 0.50
    momentum: 0.40
    volume: 0.20
    risk: 0.10
`)

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: noisy\n")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestValidate_AdvisoryNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Engine.AdvisoryEnabled = true

	assert.Error(t, cfg.Validate())

	cfg.Advisory.BaseURL = "https://advisor.internal"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RATER_ADDR", ":7777")
	t.Setenv("RATER_REDIS_ADDR", "cache.internal:6379")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr)
}
