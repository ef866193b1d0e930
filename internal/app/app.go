// Package app wires the server's components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/hanabi-live/hanabi-server-go/internal/auth"
	"github.com/hanabi-live/hanabi-server-go/internal/command"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/lifecycle"
	"github.com/hanabi-live/hanabi-server-go/internal/metrics"
	"github.com/hanabi-live/hanabi-server-go/internal/notify"
	"github.com/hanabi-live/hanabi-server-go/internal/repository"
	"github.com/hanabi-live/hanabi-server-go/internal/server"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/transport"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
	"github.com/hanabi-live/hanabi-server-go/internal/worker"
)

// ShutdownNotice is sent to every connected user when the server stops.
const ShutdownNotice = "The server is shutting down. Please reconnect in a few minutes."

const timerWheelSize = 64

// Store is the persistence the server needs.
type Store interface {
	lifecycle.Store
	table.Recorder
	transport.UserRegistrar
}

// App is a fully wired server.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	version  string
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	pool     *worker.Pool
	timers   *table.Timers
	db       *pgxpool.Pool
	redis    *redis.Client
	store    Store
	users    *user.Registry
	hub      *notify.Hub
	sessions *lifecycle.Queue
	tables   *table.Manager
	commands *command.Dispatcher
	http     *transport.Server
	grpc     *grpc.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures an App.
type Option func(*options)

type options struct {
	authn auth.Authenticator
	store Store
}

// WithAuthenticator overrides the authenticator chosen from config.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) { o.authn = a }
}

// WithStore overrides the store chosen from config.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// New connects to backing services and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, version string, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, version: version}
	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promReg)

	a.pool = worker.New(cfg.Game.WorkerPoolSize, logger)
	if err := a.pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	a.timers = table.NewTimers(cfg.Game.TimerTick, timerWheelSize)
	a.timers.Start()

	if err := a.openStore(ctx, o.store); err != nil {
		a.release()
		return nil, err
	}
	index, err := a.openIndex(ctx)
	if err != nil {
		a.release()
		return nil, err
	}

	users, writer := user.NewRegistry()
	a.users = users
	a.hub = notify.NewHub(users, logger)

	sessionOpts := []lifecycle.Option{
		lifecycle.WithExecutor(a.pool),
		lifecycle.WithMetrics(a.metrics),
		lifecycle.WithWelcomeTimeout(cfg.Game.WelcomeTimeout),
	}
	tableOpts := []table.Option{
		table.WithExecutor(a.pool),
		table.WithTimers(a.timers),
		table.WithMetrics(a.metrics),
		table.WithTracer(otel.GetTracerProvider()),
		table.WithIdleTimeout(cfg.Game.IdleTimeout),
		table.WithReplayDir(cfg.Game.ReplayDir),
		table.WithRecorder(a.store),
	}
	if index != nil {
		sessionOpts = append(sessionOpts, lifecycle.WithTableIndex(index))
		tableOpts = append(tableOpts, table.WithIndex(index))
	}
	a.sessions = lifecycle.New(writer, a.store, a.hub, logger, sessionOpts...)
	a.tables = table.NewManager(a.sessions, a.hub, logger, tableOpts...)
	a.sessions.SetTables(a.tables)

	a.commands = command.New(a.tables, users, a.sessions, logger,
		command.WithDefaults(cfg.Game.Defaults),
		command.WithMetrics(a.metrics),
	)
	a.sessions.SetDispatcher(a.commands)

	authn := o.authn
	if authn == nil {
		authn = authenticator(cfg.Auth, logger)
	}
	httpOpts := []transport.ServerOption{transport.WithUserRegistrar(a.store)}
	if cfg.Metrics.Enabled {
		httpOpts = append(httpOpts, transport.WithMetricsHandler(cfg.Metrics.Path,
			promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{Registry: a.promReg})))
	}
	a.http = transport.NewServer(cfg.Server, authn, a.sessions, users, logger, httpOpts...)

	if cfg.GRPC.Enabled {
		a.grpc = grpc.NewServer(
			grpc.UnaryInterceptor(server.ChainUnaryInterceptors(
				server.RecoveryInterceptor(logger),
				server.LoggingInterceptor(logger),
			)),
			grpc.KeepaliveParams(keepalive.ServerParameters{
				Time:    30 * time.Second,
				Timeout: 10 * time.Second,
			}),
		)
		server.RegisterAdminServer(a.grpc, server.NewAdminServer(users, a.tables, version, logger))
	}
	return a, nil
}

func authenticator(cfg config.AuthConfig, logger *zap.Logger) auth.Authenticator {
	if cfg.AllowInsecure {
		logger.Warn("insecure authentication enabled; identities are taken from the query string")
		return auth.InsecureAuthenticator{}
	}
	return auth.NewTokenAuthenticator(cfg.JWTSecret, cfg.Issuer)
}

func (a *App) openStore(ctx context.Context, override Store) error {
	switch {
	case override != nil:
		a.store = override
	case a.cfg.Database.DSN == "":
		a.logger.Warn("no database configured; user data is kept in memory")
		a.store = repository.NewMemoryStore()
	default:
		db, err := repository.NewDB(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return err
		}
		a.db = db
		a.store = repository.NewStore(db)
	}
	return nil
}

func (a *App) openIndex(ctx context.Context) (*repository.TableIndex, error) {
	if !a.cfg.Redis.Enabled {
		return nil, nil
	}
	a.redis = repository.NewRedisClient(a.cfg.Redis)
	index := repository.NewTableIndex(a.redis, a.cfg.Redis.KeyPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := index.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.logger.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	return index, nil
}

// Handler returns the HTTP handler serving websockets, health and metrics.
func (a *App) Handler() http.Handler {
	return a.http.Handler()
}

// Tables returns the table registry.
func (a *App) Tables() *table.Manager {
	return a.tables
}

// Users returns the user registry.
func (a *App) Users() *user.Registry {
	return a.users
}

// Run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	var lis net.Listener
	if a.grpc != nil {
		var err error
		lis, err = net.Listen("tcp", a.cfg.GRPC.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Address, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.http.ListenAndServe)
	if lis != nil {
		g.Go(func() error {
			a.logger.Info("starting gRPC server", zap.String("address", a.cfg.GRPC.Address))
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown disconnects every user, closes all tables and releases
// resources. Later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := a.sessions.Shutdown(ctx, ShutdownNotice); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := a.tables.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tables: %w", err))
	}
	if a.grpc != nil {
		stopped := make(chan struct{})
		go func() {
			a.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			a.grpc.Stop()
		}
	}
	a.release()
	return errors.Join(errs...)
}

func (a *App) release() {
	if a.pool != nil {
		a.pool.Stop(5 * time.Second)
	}
	if a.timers != nil {
		a.timers.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
