package server

import (
	"context"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// ListUsers returns every logged in user ordered by user ID.
func (s *adminServer) ListUsers(ctx context.Context, req *ListUsersRequest) (*ListUsersResponse, error) {
	sessions := s.registry.All()
	users := make([]UserView, 0, len(sessions))
	for _, sess := range sessions {
		view := UserView{
			UserID:    sess.UserID,
			Username:  sess.Username,
			Status:    sess.Status.String(),
			TableID:   sess.TableID,
			Inactive:  sess.Inactive,
			SessionID: sess.SessionID,
		}
		if sess.Conn != nil {
			view.RemoteAddr = sess.Conn.RemoteAddr()
		}
		if !sess.ConnectedAt.IsZero() {
			view.ConnectedAt = timestamppb.New(sess.ConnectedAt)
		}
		users = append(users, view)
	}
	return &ListUsersResponse{Users: users}, nil
}
