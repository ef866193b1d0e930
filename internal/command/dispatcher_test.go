package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
	"github.com/hanabi-live/hanabi-server-go/internal/user/usertest"
)

type submitted struct {
	tableID int
	action  table.Action
}

type fakeTables struct {
	mu        sync.Mutex
	created   []table.CreateParams
	submitted []submitted
	err       error
}

func (f *fakeTables) Create(_ context.Context, params table.CreateParams) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	return len(f.created), f.err
}

func (f *fakeTables) Submit(_ context.Context, tableID int, action table.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, submitted{tableID: tableID, action: action})
	return f.err
}

func (f *fakeTables) last(t *testing.T) submitted {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.submitted)
	return f.submitted[len(f.submitted)-1]
}

type fakePresence struct {
	inactive map[int]bool
}

func (p *fakePresence) SetInactive(userID int, inactive bool) error {
	p.inactive[userID] = inactive
	return nil
}

type fixture struct {
	d        *Dispatcher
	tables   *fakeTables
	presence *fakePresence
	conn     *usertest.Conn
	writer   *user.Writer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	registry, writer := user.NewRegistry()
	conn := usertest.NewConn("alice")
	writer.Set(user.Session{
		Identity:  user.Identity{UserID: 1, Username: "Alice"},
		SessionID: 4,
		Conn:      conn,
	})
	tables := &fakeTables{}
	presence := &fakePresence{inactive: map[int]bool{}}
	return &fixture{
		d:        New(tables, registry, presence, zaptest.NewLogger(t), opts...),
		tables:   tables,
		presence: presence,
		conn:     conn,
		writer:   writer,
	}
}

func (f *fixture) send(frame string) {
	f.d.Dispatch(1, 4, []byte(frame))
}

func TestTableCreateMergesDefaults(t *testing.T) {
	f := newFixture(t, WithDefaults(game.Options{VariantName: game.DefaultVariant, MaxClues: 8, TimeBaseSeconds: 120}))
	f.send(`tableCreate {"name":"fun","password":"pw","options":{"maxClues":6}}`)

	require.Len(t, f.tables.created, 1)
	got := f.tables.created[0]
	assert.Equal(t, 1, got.OwnerID)
	assert.Equal(t, "Alice", got.OwnerName)
	assert.Equal(t, "fun", got.Name)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, 6, got.Options.MaxClues)
	assert.Equal(t, game.DefaultVariant, got.Options.VariantName)
	assert.Equal(t, 120, got.Options.TimeBaseSeconds)
	assert.Empty(t, f.conn.Sent())
}

func TestTableCommands(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		tableID int
		action  table.Action
	}{
		{name: "join", frame: `tableJoin {"tableID":3,"password":"x"}`, tableID: 3, action: table.Join{UserID: 1, Name: "Alice", Password: "x"}},
		{name: "leave", frame: `tableLeave {"tableID":3}`, tableID: 3, action: table.Leave{UserID: 1}},
		{name: "start", frame: `tableStart {"tableID":3}`, tableID: 3, action: table.Start{UserID: 1}},
		{name: "unattend", frame: `tableUnattend {"tableID":3}`, tableID: 3, action: table.Unattend{UserID: 1}},
		{name: "spectate", frame: `tableSpectate {"tableID":3}`, tableID: 3, action: table.Spectate{UserID: 1, Name: "Alice", ShadowingSeat: table.NoSeat}},
		{name: "shadow", frame: `tableSpectate {"tableID":3,"shadowingPlayerIndex":1}`, tableID: 3, action: table.Spectate{UserID: 1, Name: "Alice", ShadowingSeat: 1}},
		{name: "note", frame: `note {"tableID":3,"order":7,"note":"5?"}`, tableID: 3, action: table.Note{UserID: 1, Order: 7, Text: "5?"}},
		{name: "play", frame: `action {"tableID":3,"type":0,"target":4}`, tableID: 3, action: table.Move{UserID: 1, Move: game.PlayMove{Order: 4}}},
		{name: "discard", frame: `action {"tableID":3,"type":1,"target":2}`, tableID: 3, action: table.Move{UserID: 1, Move: game.DiscardMove{Order: 2}}},
		{name: "color clue", frame: `action {"tableID":3,"type":2,"target":1,"value":0}`, tableID: 3, action: table.Move{UserID: 1, Move: game.ClueMove{Target: 1, Clue: game.Clue{Type: game.ClueTypeColor, Value: 0}}}},
		{name: "rank clue", frame: `action {"tableID":3,"type":3,"target":1,"value":5}`, tableID: 3, action: table.Move{UserID: 1, Move: game.ClueMove{Target: 1, Clue: game.Clue{Type: game.ClueTypeRank, Value: 5}}}},
		{name: "end game", frame: `action {"tableID":3,"type":4}`, tableID: 3, action: table.Move{UserID: 1, Move: game.ConcedeMove{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.send(tt.frame)
			got := f.tables.last(t)
			assert.Equal(t, tt.tableID, got.tableID)
			assert.Equal(t, tt.action, got.action)
			assert.Empty(t, f.conn.Sent())
		})
	}
}

func TestTableIDFallsBackToSessionTable(t *testing.T) {
	f := newFixture(t)
	f.send(`tableUnattend`)
	_, ok := f.conn.Last("error")
	assert.True(t, ok)

	f.writer.Update(1, func(s *user.Session) { s.TableID = 9 })
	f.send(`action {"type":0,"target":1}`)
	assert.Equal(t, 9, f.tables.last(t).tableID)
}

func TestInactive(t *testing.T) {
	f := newFixture(t)
	f.send(`inactive {"inactive":true}`)
	assert.True(t, f.presence.inactive[1])
}

func TestReplies(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
		kind  string
		text  string
	}{
		{name: "rejection", frame: `tableStart {"tableID":1}`, err: &game.Rejection{Reason: rules.ReasonNotYourTurn, Message: "It is not your turn."}, kind: "warning", text: "It is not your turn."},
		{name: "missing table", frame: `tableJoin {"tableID":1}`, err: table.ErrTableNotFound, kind: "warning", text: "That table does not exist."},
		{name: "internal", frame: `tableJoin {"tableID":1}`, err: errors.New("boom"), kind: "error", text: "Something went wrong. Please try again."},
		{name: "unknown command", frame: `chat {"msg":"hi"}`, kind: "error", text: `The command "chat" does not exist.`},
		{name: "malformed frame", frame: `tableJoin {"tableID":`, kind: "error", text: "That message was malformed."},
		{name: "wrong payload type", frame: `tableJoin {"tableID":"one"}`, kind: "error", text: "That message was malformed."},
		{name: "bad action type", frame: `action {"tableID":1,"type":9}`, kind: "error", text: "The action type 9 is not valid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.tables.err = tt.err
			f.send(tt.frame)

			msg, ok := f.conn.Last(tt.kind)
			require.True(t, ok, "no %s reply, got %v", tt.kind, f.conn.Commands())
			var body map[string]string
			require.NoError(t, msg.Decode(&body))
			assert.Equal(t, tt.text, body[tt.kind])
		})
	}
}

func TestStaleSessionIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.d.Dispatch(1, 3, []byte(`tableJoin {"tableID":1}`))
	f.d.Dispatch(2, 4, []byte(`tableJoin {"tableID":1}`))
	assert.Empty(t, f.tables.submitted)
	assert.Empty(t, f.conn.Sent())
}
