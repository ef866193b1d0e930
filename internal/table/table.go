// Package table owns the table registry and the per-table action queues.
// Every change to a table, including its game, happens on that table's
// queue goroutine; everything else reads published views.
package table

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/queue"
)

// NoSeat marks a spectator who is not shadowing anybody.
const NoSeat = -1

// Player is a seated participant.
type Player struct {
	UserID    int    `json:"userID"`
	Name      string `json:"name"`
	Seat      int    `json:"seat"`
	Connected bool   `json:"connected"`
	Present   bool   `json:"present"`
}

// Spectator watches a table, optionally from one player's point of view.
type Spectator struct {
	UserID        int    `json:"userID"`
	Name          string `json:"name"`
	ShadowingSeat int    `json:"shadowingPlayerIndex"`
}

// Spectating remembers the table a spectator was watching when they
// disconnected so the client can offer to rejoin it.
type Spectating struct {
	TableID       int
	ShadowingSeat int
}

// Summary is the lobby's view of a table.
type Summary struct {
	ID                int      `json:"id"`
	Name              string   `json:"name"`
	OwnerID           int      `json:"ownerID"`
	PasswordProtected bool     `json:"passwordProtected"`
	Variant           string   `json:"variant"`
	NumPlayers        int      `json:"numPlayers"`
	Players           []string `json:"players"`
	Spectators        []string `json:"spectators"`
	Running           bool     `json:"running"`
	SharedReplay      bool     `json:"sharedReplay"`
	Timed             bool     `json:"timed"`
	TimeBase          int      `json:"timeBase"`
	TimePerTurn       int      `json:"timePerTurn"`
}

// View is an immutable copy of a table published after every action.
type View struct {
	Summary    Summary        `json:"summary"`
	Players    []Player       `json:"players"`
	Spectators []Spectator    `json:"spectators"`
	Game       *game.Snapshot `json:"game,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Seated reports whether the user holds a seat.
func (v View) Seated(userID int) bool {
	for _, p := range v.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Watching reports whether the user is a spectator.
func (v View) Watching(userID int) bool {
	for _, s := range v.Spectators {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Table is one game room. Its fields belong to the table's queue goroutine.
type Table struct {
	ID           int
	Name         string
	OwnerID      int
	Options      game.Options
	CreatedAt    time.Time
	passwordHash []byte
	players      []*Player
	spectators   []*Spectator
	engine       *game.Engine
	gameID       string
	startedAt    time.Time
	lastSnapshot game.Snapshot
	eventSubs    []int
	sound        string
	turnBegan    bool
	notes        map[int]map[int]string
	clocks       []time.Duration
	turnStarted  time.Time
	turnTimer    *timingwheel.Timer
	idleTimer    *timingwheel.Timer
	lastActivity time.Time
	removed      bool
	indexMu      sync.Mutex
	indexOps     []indexOp
	indexBusy    bool
	queue        *queue.Serial[*request]
	view         atomic.Pointer[View]
}

// indexOp is a pending membership write to the shared index.
type indexOp struct {
	userID int
	add    bool
}

func (t *Table) player(userID int) *Player {
	for _, p := range t.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (t *Table) spectator(userID int) *Spectator {
	for _, s := range t.spectators {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func (t *Table) removeSpectator(userID int) {
	for i, s := range t.spectators {
		if s.UserID == userID {
			t.spectators = append(t.spectators[:i], t.spectators[i+1:]...)
			return
		}
	}
}

func (t *Table) removePlayer(userID int) {
	for i, p := range t.players {
		if p.UserID == userID {
			t.players = append(t.players[:i], t.players[i+1:]...)
			break
		}
	}
	for i, p := range t.players {
		p.Seat = i
	}
}

func (t *Table) started() bool {
	return t.engine != nil
}

func (t *Table) running() bool {
	return t.engine != nil && t.engine.Status() == game.StatusRunning
}

func (t *Table) ended() bool {
	return t.engine != nil && t.engine.Status() == game.StatusEnded
}

// participants returns everyone who receives table traffic.
func (t *Table) participants() []int {
	ids := make([]int, 0, len(t.players)+len(t.spectators))
	for _, p := range t.players {
		if p.Present {
			ids = append(ids, p.UserID)
		}
	}
	for _, s := range t.spectators {
		ids = append(ids, s.UserID)
	}
	return ids
}

// abandoned reports whether nobody is left to see the table.
func (t *Table) abandoned() bool {
	return len(t.participants()) == 0
}

func (t *Table) summary() Summary {
	s := Summary{
		ID:                t.ID,
		Name:              t.Name,
		OwnerID:           t.OwnerID,
		PasswordProtected: len(t.passwordHash) > 0,
		Variant:           t.Options.VariantName,
		NumPlayers:        len(t.players),
		Players:           make([]string, len(t.players)),
		Spectators:        make([]string, len(t.spectators)),
		Running:           t.running(),
		SharedReplay:      t.ended(),
		Timed:             t.Options.Timed,
		TimeBase:          t.Options.TimeBaseSeconds,
		TimePerTurn:       t.Options.TimePerTurnSeconds,
	}
	if s.Variant == "" {
		s.Variant = game.DefaultVariant
	}
	for i, p := range t.players {
		s.Players[i] = p.Name
	}
	for i, sp := range t.spectators {
		s.Spectators[i] = sp.Name
	}
	return s
}

func (t *Table) buildView(now time.Time) (*View, error) {
	v := &View{
		Summary:    t.summary(),
		Players:    make([]Player, len(t.players)),
		Spectators: make([]Spectator, len(t.spectators)),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  now,
	}
	for i, p := range t.players {
		v.Players[i] = *p
	}
	for i, s := range t.spectators {
		v.Spectators[i] = *s
	}
	if t.engine != nil {
		snap, err := t.engine.Snapshot()
		if err != nil {
			return nil, err
		}
		v.Game = &snap
	}
	return v, nil
}
