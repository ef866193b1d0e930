package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
)

// Store is the persistence the welcome payload is assembled from.
type Store interface {
	GameCount(ctx context.Context, userID int) (int, error)
	CreatedAt(ctx context.Context, userID int) (time.Time, error)
	Settings(ctx context.Context, userID int) (json.RawMessage, error)
	Friends(ctx context.Context, userID int) ([]string, error)
}

// TableDirectory is the read side of the table registry plus the one write
// the lifecycle queue makes: flagging a player's connection.
type TableDirectory interface {
	TablesContainingUser(userID int) []int
	TableIDsUserIsPlayingAt(userID int) []int
	SpectatingMetadata(userID int) (table.Spectating, bool)
	SetConnected(tableID, userID int, connected bool) error
	Summaries() []table.Summary
}

// TableIndex is shared storage of table membership. When it is configured
// it is consulted before the in-memory directory.
type TableIndex interface {
	TablesContainingUser(ctx context.Context, userID int) ([]int, error)
}

// Broadcaster sends a command to every connected user.
type Broadcaster interface {
	SendAll(command string, payload any)
}

// Dispatcher handles inbound messages from a connection.
type Dispatcher interface {
	Dispatch(userID int, sessionID uint64, data []byte)
}

// Executor runs detached follow-up work.
type Executor interface {
	Post(job func())
}

type goExecutor struct{}

func (goExecutor) Post(job func()) { go job() }

type noTables struct{}

func (noTables) TablesContainingUser(int) []int                  { return nil }
func (noTables) TableIDsUserIsPlayingAt(int) []int               { return []int{} }
func (noTables) SpectatingMetadata(int) (table.Spectating, bool) { return table.Spectating{}, false }
func (noTables) SetConnected(int, int, bool) error               { return nil }
func (noTables) Summaries() []table.Summary                      { return []table.Summary{} }
