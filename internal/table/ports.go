package table

import (
	"context"
	"time"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// Presence updates what the lobby shows a user doing.
type Presence interface {
	SetStatus(userID int, status user.Status, tableID int) error
}

// Broadcaster delivers commands to connected users.
type Broadcaster interface {
	SendAll(command string, payload any)
	Send(userID int, command string, payload any)
}

// Executor runs detached follow-up work.
type Executor interface {
	Post(job func())
}

// Index mirrors table membership into shared storage so other processes
// can find the tables a user belongs to.
type Index interface {
	Add(ctx context.Context, tableID, userID int) error
	Remove(ctx context.Context, tableID, userID int) error
}

// GameRecord is the persisted summary of a finished game.
type GameRecord struct {
	GameID       string
	TableID      int
	Name         string
	Variant      string
	Seed         string
	PlayerIDs    []int
	Score        int
	EndCondition string
	StartedAt    time.Time
	EndedAt      time.Time
}

// Recorder persists finished games.
type Recorder interface {
	RecordGame(ctx context.Context, rec GameRecord) error
}

type goExecutor struct{}

func (goExecutor) Post(job func()) { go job() }
