// Package server implements the admin gRPC service.
package server

import (
	"context"
	"net"
	"runtime"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// Tables is the table registry as seen by operators.
type Tables interface {
	Count() int
	View(tableID int) (table.View, error)
	Submit(ctx context.Context, tableID int, action table.Action) error
}

// adminServer implements AdminServer
type adminServer struct {
	registry  *user.Registry
	tables    Tables
	version   string
	startedAt time.Time
	logger    *zap.Logger
}

// NewAdminServer creates the admin service.
func NewAdminServer(registry *user.Registry, tables Tables, version string, logger *zap.Logger) AdminServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &adminServer{
		registry:  registry,
		tables:    tables,
		version:   version,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetServerState returns server state information
func (s *adminServer) GetServerState(ctx context.Context, req *GetServerStateRequest) (*GetServerStateResponse, error) {
	return &GetServerStateResponse{
		State: ServerState{
			Sessions:   s.registry.Count(),
			Tables:     s.tables.Count(),
			Goroutines: runtime.NumGoroutine(),
			Version:    s.version,
			StartedAt:  timestamppb.New(s.startedAt),
			ServerTime: timestamppb.Now(),
		},
	}, nil
}

// Helper function to extract host from context
func extractHostFromContext(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != net.Addr(nil) {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
