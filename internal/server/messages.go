package server

import (
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
)

type GetServerStateRequest struct{}

type ServerState struct {
	Sessions   int                    `json:"sessions"`
	Tables     int                    `json:"tables"`
	Goroutines int                    `json:"goroutines"`
	Version    string                 `json:"version"`
	StartedAt  *timestamppb.Timestamp `json:"startedAt"`
	ServerTime *timestamppb.Timestamp `json:"serverTime"`
}

type GetServerStateResponse struct {
	State ServerState `json:"state"`
}

type ListUsersRequest struct{}

type UserView struct {
	UserID      int                    `json:"userID"`
	Username    string                 `json:"username"`
	Status      string                 `json:"status"`
	TableID     int                    `json:"tableID"`
	Inactive    bool                   `json:"inactive"`
	SessionID   uint64                 `json:"sessionID"`
	RemoteAddr  string                 `json:"remoteAddr"`
	ConnectedAt *timestamppb.Timestamp `json:"connectedAt"`
}

type ListUsersResponse struct {
	Users []UserView `json:"users"`
}

type GetTableRequest struct {
	TableID int `json:"tableID"`
}

type TableView struct {
	Summary    table.Summary          `json:"summary"`
	Players    []table.Player         `json:"players"`
	Spectators []table.Spectator      `json:"spectators"`
	Game       *game.Snapshot         `json:"game,omitempty"`
	CreatedAt  *timestamppb.Timestamp `json:"createdAt"`
}

type GetTableResponse struct {
	Table TableView `json:"table"`
}

type TerminateTableRequest struct {
	TableID int    `json:"tableID"`
	Reason  string `json:"reason"`
}

type TerminateTableResponse struct{}
