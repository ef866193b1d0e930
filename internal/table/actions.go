package table

import (
	"context"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
)

// Action is one request applied on a table's queue.
type Action interface {
	Kind() string
}

// Join takes a seat before the game starts.
type Join struct {
	UserID   int
	Name     string
	Password string
}

// Leave gives up a seat before the game starts. The owner leaving disbands
// the table.
type Leave struct {
	UserID int
}

// Start deals the game. Only the owner may start.
type Start struct {
	UserID int
}

// Spectate watches the table, optionally shadowing a seat.
type Spectate struct {
	UserID        int
	Name          string
	ShadowingSeat int
}

// Unattend returns a player or spectator to the lobby. A player of a started
// game keeps their seat.
type Unattend struct {
	UserID int
}

// SetConnected marks a participant's connection state.
type SetConnected struct {
	UserID    int
	Connected bool
}

// Note records a player's private note on a card.
type Note struct {
	UserID int
	Order  int
	Text   string
}

// Move is a game move made by a seated player.
type Move struct {
	UserID int
	Move   game.Move
}

// Terminate ends the table. A running game is conceded on behalf of the
// owner; anything else is disbanded.
type Terminate struct {
	Reason string
}

type turnExpired struct {
	turn int
}

type idleExpired struct{}

// discardTable removes a table whose owner could not be seated. It queues
// behind the owner's join in case that join is still pending.
type discardTable struct{}

func (Join) Kind() string         { return "join" }
func (Leave) Kind() string        { return "leave" }
func (Start) Kind() string        { return "start" }
func (Spectate) Kind() string     { return "spectate" }
func (Unattend) Kind() string     { return "unattend" }
func (SetConnected) Kind() string { return "setConnected" }
func (Note) Kind() string         { return "note" }
func (Terminate) Kind() string    { return "terminate" }
func (turnExpired) Kind() string  { return "turnExpired" }
func (idleExpired) Kind() string  { return "idleExpired" }
func (discardTable) Kind() string { return "discardTable" }

func (m Move) Kind() string {
	if m.Move == nil {
		return "move"
	}
	return m.Move.Kind().String()
}

// request carries an action through a table's queue. reply is nil for
// fire-and-forget actions.
type request struct {
	ctx    context.Context
	action Action
	reply  chan error
}
