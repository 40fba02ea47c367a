package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "ex:", cfg.Cache.Prefix)
	assert.True(t, cfg.Cache.EnableSWR)
	assert.Equal(t, 2.0, cfg.Cache.StaleMultiplier)
	assert.Equal(t, time.Second, cfg.Poll.Odds)
	assert.Equal(t, 60*time.Second, cfg.Poll.MatchList)
	assert.Equal(t, 2*time.Second, cfg.TTL.Odds)
	assert.Equal(t, 2*time.Minute, cfg.TTL.MatchList)
	assert.Equal(t, 30*time.Second, cfg.Hot.TTL)
	assert.Equal(t, "4", cfg.Hot.DefaultSportID)
	assert.Equal(t, 5, cfg.Worker.MaxConcurrency)
	assert.Equal(t, []string{"1", "2", "4"}, cfg.Sports)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ODDSEDGE_HTTP_PORT", "9090")
	t.Setenv("ODDSEDGE_PROVIDER_BASE_URL", "http://upstream:7000")
	t.Setenv("ODDSEDGE_POLL_ODDS_MS", "250")
	t.Setenv("ODDSEDGE_HOT_TTL_SECONDS", "45")
	t.Setenv("ODDSEDGE_MAX_CONCURRENCY", "8")
	t.Setenv("ODDSEDGE_CACHE_ENABLE_SWR", "false")
	t.Setenv("ODDSEDGE_STALE_MULTIPLIER", "3.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "http://upstream:7000", cfg.Provider.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Odds)
	assert.Equal(t, 45*time.Second, cfg.Hot.TTL)
	assert.Equal(t, 8, cfg.Worker.MaxConcurrency)
	assert.False(t, cfg.Cache.EnableSWR)
	assert.Equal(t, 3.5, cfg.Cache.StaleMultiplier)
}

func TestMalformedEnvValuesAreIgnored(t *testing.T) {
	t.Setenv("ODDSEDGE_HTTP_PORT", "not-a-number")
	t.Setenv("ODDSEDGE_POLL_ODDS_MS", "-5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, time.Second, cfg.Poll.Odds)
}

func TestYAMLFileLayeredUnderEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 8888
cache:
  backend: memory
  staleMultiplier: 4
hot:
  defaultSportId: "2"
`), 0o644))

	t.Setenv("ODDSEDGE_HTTP_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.HTTP.Port, "env wins over file")
	assert.Equal(t, 4.0, cfg.Cache.StaleMultiplier)
	assert.Equal(t, "2", cfg.Hot.DefaultSportID)
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("ODDSEDGE_CACHE_BACKEND", "memcached")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("redis without address", func(t *testing.T) {
		t.Setenv("ODDSEDGE_CACHE_BACKEND", "redis")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("redis with address", func(t *testing.T) {
		t.Setenv("ODDSEDGE_CACHE_BACKEND", "redis")
		t.Setenv("ODDSEDGE_REDIS_ADDR", "localhost:6379")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.Cache.Backend)
	})

	t.Run("stale multiplier below one", func(t *testing.T) {
		t.Setenv("ODDSEDGE_STALE_MULTIPLIER", "0.5")
		_, err := Load("")
		assert.Error(t, err)
	})
}
