// Package config loads server configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
)

// EnvPrefix prefixes every environment override, e.g. HANABI_SERVER_ADDRESS.
const EnvPrefix = "HANABI"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig configures the HTTP and WebSocket listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	WebSocketPath   string        `mapstructure:"websocket_path"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MessageRate     float64       `mapstructure:"message_rate"`
	MessageBurst    int           `mapstructure:"message_burst"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig configures the admin RPC listener.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty DSN runs the
// server without persistence.
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the shared table membership index.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig configures the rotating log file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuthConfig configures connection authentication.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	Issuer        string `mapstructure:"issuer"`
	AllowInsecure bool   `mapstructure:"allow_insecure"`
}

// GameConfig configures tables and the work around them.
type GameConfig struct {
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	WelcomeTimeout time.Duration `mapstructure:"welcome_timeout"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	ReplayDir      string        `mapstructure:"replay_dir"`
	TimerTick      time.Duration `mapstructure:"timer_tick"`
	Defaults       game.Options  `mapstructure:"defaults"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_limit", 16*1024)
	v.SetDefault("server.write_wait", 10*time.Second)
	v.SetDefault("server.pong_wait", 60*time.Second)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.message_rate", 10.0)
	v.SetDefault("server.message_burst", 20)
	v.SetDefault("server.max_sessions", 10000)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.address", ":9090")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "hanabi:")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.filename", "logs/hanabi.log")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "hanabi")
	v.SetDefault("auth.allow_insecure", false)

	v.SetDefault("game.idle_timeout", 30*time.Minute)
	v.SetDefault("game.welcome_timeout", 5*time.Second)
	v.SetDefault("game.worker_pool_size", 64)
	v.SetDefault("game.timer_tick", 100*time.Millisecond)
	v.SetDefault("game.replay_dir", "")
}

// New returns a viper instance reading path and HANABI_* environment
// variables. A missing file is not an error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return fmt.Errorf("server.websocket_path must start with /, got %q", c.Server.WebSocketPath)
	}
	if c.Server.MessageRate <= 0 || c.Server.MessageBurst <= 0 {
		return errors.New("server.message_rate and server.message_burst must be positive")
	}
	if c.GRPC.Enabled && c.GRPC.Address == "" {
		return errors.New("grpc.address is required when grpc is enabled")
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowInsecure {
		return errors.New("auth.jwt_secret is required unless auth.allow_insecure is set")
	}
	if c.Game.WorkerPoolSize <= 0 {
		return fmt.Errorf("game.worker_pool_size must be positive, got %d", c.Game.WorkerPoolSize)
	}
	if c.Game.TimerTick <= 0 {
		return fmt.Errorf("game.timer_tick must be positive, got %s", c.Game.TimerTick)
	}
	return nil
}

// Watch calls fn with the new configuration every time the file changes.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *zap.Logger, fn func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			logger.Warn("ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		fn(cfg)
	})
	v.WatchConfig()
}
