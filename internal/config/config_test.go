package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10, cfg.Client.ReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.ReconnectDelay)
	assert.Equal(t, 3*time.Second, cfg.Client.ReconnectDelayMax)
	assert.Equal(t, 10*time.Second, cfg.Client.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Client.HeartbeatInterval)
	assert.Equal(t, 6, cfg.Rooms.PINLength)
	assert.False(t, cfg.Redis.Enabled)
}

func TestFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("port: 9090\nrooms:\n  grace_period: 5m\n  slugs:\n    sunday: room-1\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))

	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("STAGE_REDIS_ADDR", "redis:6380")

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.Rooms.GracePeriod)
	assert.Equal(t, map[string]string{"sunday": "room-1"}, cfg.Rooms.Slugs)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
