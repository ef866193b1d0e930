// Package transport accepts websocket clients and hands them to the
// connection lifecycle queue.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/auth"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

const registerTimeout = 2 * time.Second

// Admitter installs authenticated connections as sessions.
type Admitter interface {
	NextSessionID() uint64
	Admit(identity user.Identity, conn user.Conn, sessionID uint64) error
}

// UserRegistrar makes sure an authenticated user has an account record.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, identity user.Identity) error
}

// Server serves the websocket endpoint and the operational HTTP routes.
type Server struct {
	cfg        config.ServerConfig
	authn      auth.Authenticator
	admitter   Admitter
	registry   *user.Registry
	registrar  UserRegistrar
	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetricsHandler mounts h at path.
func WithMetricsHandler(path string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.router.Handle(path, h)
	}
}

// WithUserRegistrar records every authenticated user before admission.
func WithUserRegistrar(r UserRegistrar) ServerOption {
	return func(s *Server) {
		s.registrar = r
	}
}

// NewServer creates a server. registry is consulted for the session limit.
func NewServer(cfg config.ServerConfig, authn auth.Authenticator, admitter Admitter, registry *user.Registry, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		authn:    authn,
		admitter: admitter,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get(cfg.WebSocketPath, s.handleWebSocket)
	s.router = r

	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// originChecker allows the listed origins. "*" allows any origin and an
// empty list falls back to the same-origin check.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting websocket server",
		zap.String("address", s.cfg.Address),
		zap.String("path", s.cfg.WebSocketPath),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections. Upgraded connections are owned
// by the lifecycle queue and are closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authn.Authenticate(r)
	if err != nil {
		s.logger.Debug("rejected websocket connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.cfg.MaxSessions > 0 && s.registry != nil && s.registry.Count() >= s.cfg.MaxSessions {
		if _, ok := s.registry.Get(identity.UserID); !ok {
			s.logger.Warn("session limit reached", zap.Int("user_id", identity.UserID))
			http.Error(w, "server full", http.StatusServiceUnavailable)
			return
		}
	}

	if s.registrar != nil {
		ctx, cancel := context.WithTimeout(r.Context(), registerTimeout)
		err := s.registrar.EnsureUser(ctx, identity)
		cancel()
		if err != nil {
			s.logger.Warn("failed to register user", zap.Int("user_id", identity.UserID), zap.Error(err))
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConn(ws, ConnOptions{
		ReadLimit:    s.cfg.ReadLimit,
		WriteWait:    s.cfg.WriteWait,
		PongWait:     s.cfg.PongWait,
		SendBuffer:   s.cfg.SendBuffer,
		MessageRate:  s.cfg.MessageRate,
		MessageBurst: s.cfg.MessageBurst,
	}, s.logger.With(zap.Int("user_id", identity.UserID)))

	sessionID := s.admitter.NextSessionID()
	s.logger.Debug("websocket connected",
		zap.Int("user_id", identity.UserID),
		zap.Uint64("session_id", sessionID),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	if err := s.admitter.Admit(identity, conn, sessionID); err != nil {
		s.logger.Warn("failed to admit connection", zap.Int("user_id", identity.UserID), zap.Error(err))
		conn.Terminate("The server is not accepting connections right now.")
	}
}
