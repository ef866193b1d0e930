package server

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
)

const defaultTerminateReason = "The table was closed by an administrator."

// GetTable returns the current view of one table.
func (s *adminServer) GetTable(ctx context.Context, req *GetTableRequest) (*GetTableResponse, error) {
	if req.TableID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "table id is required")
	}
	view, err := s.tables.View(req.TableID)
	if err != nil {
		return nil, tableError(req.TableID, err)
	}
	return &GetTableResponse{
		Table: TableView{
			Summary:    view.Summary,
			Players:    view.Players,
			Spectators: view.Spectators,
			Game:       view.Game,
			CreatedAt:  timestamppb.New(view.CreatedAt),
		},
	}, nil
}

// TerminateTable ends a table through its action queue.
func (s *adminServer) TerminateTable(ctx context.Context, req *TerminateTableRequest) (*TerminateTableResponse, error) {
	if req.TableID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "table id is required")
	}
	reason := req.Reason
	if reason == "" {
		reason = defaultTerminateReason
	}
	if err := s.tables.Submit(ctx, req.TableID, table.Terminate{Reason: reason}); err != nil {
		return nil, tableError(req.TableID, err)
	}

	s.logger.Info("table terminated by admin",
		zap.Int("table_id", req.TableID),
		zap.String("reason", reason),
		zap.String("host", extractHostFromContext(ctx)),
	)
	return &TerminateTableResponse{}, nil
}

func tableError(tableID int, err error) error {
	switch {
	case errors.Is(err, table.ErrTableNotFound):
		return status.Errorf(codes.NotFound, "table %d not found", tableID)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
