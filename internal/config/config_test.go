package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sample = `
server:
  address: ":7000"
  message_rate: 5
logging:
  level: debug
auth:
  jwt_secret: secret
game:
  idle_timeout: 10m
  defaults:
    variant: "6 Suits"
    max_strikes: 2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, 5.0, cfg.Server.MessageRate)
	assert.Equal(t, "/ws", cfg.Server.WebSocketPath)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteWait)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10*time.Minute, cfg.Game.IdleTimeout)
	assert.Equal(t, "6 Suits", cfg.Game.Defaults.VariantName)
	assert.Equal(t, 2, cfg.Game.Defaults.MaxStrikes)
	assert.Equal(t, 64, cfg.Game.WorkerPoolSize)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HANABI_SERVER_ADDRESS", ":9999")
	t.Setenv("HANABI_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HANABI_AUTH_ALLOW_INSECURE", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.True(t, cfg.Auth.AllowInsecure)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = Load(writeConfig(t, "auth:\n  jwt_secret: x\nserver:\n  websocket_path: ws\n"))
	assert.ErrorContains(t, err, "websocket_path")

	_, err = Load(writeConfig(t, "auth:\n  jwt_secret: x\ngame:\n  worker_pool_size: 0\n"))
	assert.ErrorContains(t, err, "worker_pool_size")

	_, err = Load(writeConfig(t, "auth:\n  jwt_secret: x\ngame:\n  timer_tick: 0s\n"))
	assert.ErrorContains(t, err, "timer_tick")
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, sample)
	v, err := New(path)
	require.NoError(t, err)

	var level atomic.Value
	Watch(v, zaptest.NewLogger(t), func(cfg *Config) {
		level.Store(cfg.Logging.Level)
	})

	updated := []byte("auth:\n  jwt_secret: secret\nlogging:\n  level: warn\n")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, updated, 0o600)
		got, _ := level.Load().(string)
		return got == "warn"
	}, 5*time.Second, 100*time.Millisecond)
}
