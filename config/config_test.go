package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ABLY_API_KEY", "app.key:secret")
	t.Setenv("ABLY_QUEUE_NAME", "app:presence")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ABLY_QUEUE_ENDPOINT", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PRUNE_INTERVAL", "")
	t.Setenv("LOG_LEVEL", "")

	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, DefaultQueueEndpoint, cfg.QueueEndpoint)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultPruneInterval, cfg.PruneInterval)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("PRUNE_INTERVAL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 90*time.Second, cfg.PruneInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Missing(t *testing.T) {
	setRequired(t)
	t.Setenv("ABLY_QUEUE_NAME", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "ABLY_QUEUE_NAME")
}

func TestLoad_BadInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("PRUNE_INTERVAL", "often")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", "")
	os.Unsetenv("HTTP_ADDR")
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:7000\nREDIS_URL=redis://ignored\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}
