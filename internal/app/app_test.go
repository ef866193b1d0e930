package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanabi-live/hanabi-server-go/internal/auth"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/repository"
)

func minimalConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:         "127.0.0.1:0",
			WebSocketPath:   "/ws",
			ShutdownTimeout: 2 * time.Second,
		},
		GRPC: config.GRPCConfig{Enabled: true, Address: "127.0.0.1:0"},
		Auth: config.AuthConfig{JWTSecret: "secret"},
		Game: config.GameConfig{
			WorkerPoolSize: 4,
			TimerTick:      10 * time.Millisecond,
		},
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), minimalConfig(), zaptest.NewLogger(t), "test")
	require.NoError(t, err)
	_, isMemory := a.store.(*repository.MemoryStore)
	assert.True(t, isMemory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestAuthenticatorFromConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, ok := authenticator(config.AuthConfig{AllowInsecure: true}, logger).(auth.InsecureAuthenticator)
	assert.True(t, ok)
	_, ok = authenticator(config.AuthConfig{JWTSecret: "s"}, logger).(*auth.TokenAuthenticator)
	assert.True(t, ok)
}

func TestRedisUnavailableFailsStartup(t *testing.T) {
	cfg := minimalConfig()
	cfg.GRPC.Enabled = false
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"}
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), "test")
	assert.ErrorContains(t, err, "redis")
}
