package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
	"github.com/hanabi-live/hanabi-server-go/internal/user/usertest"
)

const waitTimeout = 2 * time.Second

type fakeStore struct {
	games     int
	createdAt time.Time
	settings  json.RawMessage
	friends   []string
	err       error
	block     chan struct{}
}

func (s *fakeStore) wait(ctx context.Context) error {
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStore) GameCount(ctx context.Context, _ int) (int, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	return s.games, s.err
}

func (s *fakeStore) CreatedAt(context.Context, int) (time.Time, error) {
	return s.createdAt, s.err
}

func (s *fakeStore) Settings(context.Context, int) (json.RawMessage, error) {
	return s.settings, s.err
}

func (s *fakeStore) Friends(context.Context, int) ([]string, error) {
	return s.friends, s.err
}

type connectedCall struct {
	tableID   int
	userID    int
	connected bool
}

type fakeTables struct {
	mu         sync.Mutex
	containing []int
	playing    []int
	meta       *table.Spectating
	calls      []connectedCall
}

func (f *fakeTables) TablesContainingUser(int) []int {
	return f.containing
}

func (f *fakeTables) TableIDsUserIsPlayingAt(int) []int {
	return f.playing
}

func (f *fakeTables) SpectatingMetadata(int) (table.Spectating, bool) {
	if f.meta == nil {
		return table.Spectating{}, false
	}
	return *f.meta, true
}

func (f *fakeTables) SetConnected(tableID, userID int, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, connectedCall{tableID: tableID, userID: userID, connected: connected})
	return nil
}

func (f *fakeTables) Summaries() []table.Summary {
	return []table.Summary{{ID: 1, Name: "existing"}}
}

func (f *fakeTables) connectedCalls() []connectedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]connectedCall(nil), f.calls...)
}

type fakeIndex struct {
	ids []int
	err error
}

func (f fakeIndex) TablesContainingUser(context.Context, int) ([]int, error) {
	return f.ids, f.err
}

type broadcastRecord struct {
	command string
	payload any
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []broadcastRecord
}

func (b *fakeBroadcaster) SendAll(command string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, broadcastRecord{command: command, payload: payload})
}

func (b *fakeBroadcaster) commands(command string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, r := range b.sent {
		if r.command == command {
			out = append(out, r.payload)
		}
	}
	return out
}

type dispatched struct {
	userID    int
	sessionID uint64
	data      string
}

type fakeDispatcher struct {
	mu  sync.Mutex
	got []dispatched
}

func (d *fakeDispatcher) Dispatch(userID int, sessionID uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, dispatched{userID: userID, sessionID: sessionID, data: string(data)})
}

type fixture struct {
	q         *Queue
	store     *fakeStore
	tables    *fakeTables
	broadcast *fakeBroadcaster
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: &fakeStore{
			games:     12,
			createdAt: time.Now().Add(-time.Hour),
			settings:  json.RawMessage(`{"volume":50}`),
			friends:   []string{"Bob"},
		},
		tables:    &fakeTables{},
		broadcast: &fakeBroadcaster{},
	}
	_, writer := user.NewRegistry()
	f.q = New(writer, f.store, f.broadcast, zaptest.NewLogger(t), opts...)
	f.q.SetTables(f.tables)
	t.Cleanup(f.q.Close)
	return f
}

func (f *fixture) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.q.Sync(ctx))
}

var alice = user.Identity{UserID: 1, Username: "Alice"}

func TestAdmitInstallsSessionAndWelcomes(t *testing.T) {
	f := newFixture(t)
	conn := usertest.NewConn("10.0.0.1")

	require.NoError(t, f.q.Admit(alice, conn, 1))
	f.sync(t)

	s, ok := f.q.Registry().Get(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.SessionID)
	assert.Equal(t, user.StatusLobby, s.Status)
	assert.NotEmpty(t, s.ConnID)
	assert.True(t, conn.Attached())

	presence := f.broadcast.commands("user")
	require.Len(t, presence, 1)
	assert.Equal(t, "Alice", presence[0].(user.Info).Name)

	var welcome Welcome
	require.NoError(t, conn.WaitFor(t, "welcome", waitTimeout).Decode(&welcome))
	assert.Equal(t, 1, welcome.UserID)
	assert.Equal(t, 12, welcome.TotalGames)
	assert.False(t, welcome.FirstTimeUser)
	assert.JSONEq(t, `{"volume":50}`, string(welcome.Settings))
	assert.Equal(t, []string{"Bob"}, welcome.Friends)
	assert.Equal(t, []int{}, welcome.PlayingAtTables)
	assert.Nil(t, welcome.DisconSpectatingTable)
	assert.False(t, welcome.ShuttingDown)

	conn.WaitFor(t, "tableList", waitTimeout)
	assert.Equal(t, []string{"welcome", "userList", "tableList"}, conn.Commands())
}

func TestNewLoginSupersedesOldSession(t *testing.T) {
	f := newFixture(t)
	old := usertest.NewConn("old")
	newer := usertest.NewConn("new")

	require.NoError(t, f.q.Admit(alice, old, 3))
	require.NoError(t, f.q.Admit(alice, newer, 5))
	f.sync(t)
	f.sync(t)

	terminated, notice := old.Terminated()
	assert.True(t, terminated)
	assert.Equal(t, supersededNotice, notice)

	s, ok := f.q.Registry().Get(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, uint64(5), s.SessionID)

	require.NoError(t, f.q.Dismiss(alice.UserID, 3))
	f.sync(t)
	assert.Equal(t, 1, f.q.Registry().Count())
	assert.Empty(t, f.broadcast.commands("userLeft"))

	require.NoError(t, f.q.Dismiss(alice.UserID, 5))
	f.sync(t)
	assert.Equal(t, 0, f.q.Registry().Count())
	left := f.broadcast.commands("userLeft")
	require.Len(t, left, 1)
	assert.Equal(t, Left{UserID: 1}, left[0])
}

func TestStaleLoginIsRejected(t *testing.T) {
	f := newFixture(t)
	current := usertest.NewConn("current")
	stale := usertest.NewConn("stale")

	require.NoError(t, f.q.Admit(alice, current, 5))
	require.NoError(t, f.q.Admit(alice, stale, 3))
	f.sync(t)

	terminated, notice := stale.Terminated()
	assert.True(t, terminated)
	assert.Equal(t, staleNotice, notice)
	assert.False(t, stale.Attached())

	terminated, _ = current.Terminated()
	assert.False(t, terminated)
	s, _ := f.q.Registry().Get(alice.UserID)
	assert.Equal(t, uint64(5), s.SessionID)
}

func TestClosingConnectionDismisses(t *testing.T) {
	f := newFixture(t)
	conn := usertest.NewConn("addr")

	require.NoError(t, f.q.Admit(alice, conn, f.q.NextSessionID()))
	f.sync(t)
	conn.Close()
	f.sync(t)

	assert.Equal(t, 0, f.q.Registry().Count())
	assert.Len(t, f.broadcast.commands("userLeft"), 1)
}

func TestDismissOfAbsentUserIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.q.Dismiss(42, 1))
	f.sync(t)
	assert.Empty(t, f.broadcast.commands("userLeft"))
}

func TestDismissMarksTablesDisconnected(t *testing.T) {
	t.Run("index and registry", func(t *testing.T) {
		f := newFixture(t, WithTableIndex(fakeIndex{ids: []int{9, 11}}))
		f.tables.containing = []int{7, 9}

		require.NoError(t, f.q.Admit(alice, usertest.NewConn("a"), 1))
		require.NoError(t, f.q.Dismiss(alice.UserID, 1))
		f.sync(t)

		assert.ElementsMatch(t, []connectedCall{
			{tableID: 7, userID: 1},
			{tableID: 9, userID: 1},
			{tableID: 11, userID: 1},
		}, f.tables.connectedCalls())
	})

	t.Run("index failure falls back", func(t *testing.T) {
		f := newFixture(t, WithTableIndex(fakeIndex{err: errors.New("redis down")}))
		f.tables.containing = []int{7}

		require.NoError(t, f.q.Admit(alice, usertest.NewConn("a"), 1))
		require.NoError(t, f.q.Dismiss(alice.UserID, 1))
		f.sync(t)

		assert.Equal(t, []connectedCall{{tableID: 7, userID: 1}}, f.tables.connectedCalls())
		assert.Len(t, f.broadcast.commands("userLeft"), 1)
	})
}

func TestAdmitReconnectsPlayer(t *testing.T) {
	f := newFixture(t)
	f.tables.playing = []int{4}
	f.tables.meta = &table.Spectating{TableID: 8, ShadowingSeat: 2}
	conn := usertest.NewConn("addr")

	require.NoError(t, f.q.Admit(alice, conn, 1))
	f.sync(t)
	assert.Equal(t, []connectedCall{{tableID: 4, userID: 1, connected: true}}, f.tables.connectedCalls())

	var welcome Welcome
	require.NoError(t, conn.WaitFor(t, "welcome", waitTimeout).Decode(&welcome))
	assert.Equal(t, []int{4}, welcome.PlayingAtTables)
	require.NotNil(t, welcome.DisconSpectatingTable)
	assert.Equal(t, 8, *welcome.DisconSpectatingTable)
	assert.Equal(t, 2, *welcome.DisconShadowingSeat)
}

func TestWelcomeDegradesOnStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("database unavailable")
	conn := usertest.NewConn("addr")

	require.NoError(t, f.q.Admit(alice, conn, 1))
	f.sync(t)

	var welcome Welcome
	require.NoError(t, conn.WaitFor(t, "welcome", waitTimeout).Decode(&welcome))
	assert.Equal(t, 0, welcome.TotalGames)
	assert.JSONEq(t, `{}`, string(welcome.Settings))
	assert.Equal(t, []string{}, welcome.Friends)
	assert.False(t, welcome.FirstTimeUser)
	assert.Equal(t, 1, f.q.Registry().Count())
}

func TestFirstTimeUser(t *testing.T) {
	f := newFixture(t)
	f.store.createdAt = time.Now().Add(-2 * time.Second)
	conn := usertest.NewConn("addr")

	require.NoError(t, f.q.Admit(alice, conn, 1))

	var welcome Welcome
	require.NoError(t, conn.WaitFor(t, "welcome", waitTimeout).Decode(&welcome))
	assert.True(t, welcome.FirstTimeUser)
}

func TestWelcomeDoesNotBlockQueue(t *testing.T) {
	f := newFixture(t)
	f.store.block = make(chan struct{})
	slow := usertest.NewConn("slow")

	require.NoError(t, f.q.Admit(alice, slow, 1))
	bob := user.Identity{UserID: 2, Username: "Bob"}
	require.NoError(t, f.q.Admit(bob, usertest.NewConn("fast"), 2))
	f.sync(t)

	assert.Equal(t, 2, f.q.Registry().Count())
	_, welcomed := slow.Last("welcome")
	assert.False(t, welcomed)

	close(f.store.block)
	slow.WaitFor(t, "welcome", waitTimeout)
}

func TestConcurrentLoginsKeepNewestSession(t *testing.T) {
	f := newFixture(t)

	const logins = 25
	ids := make(chan uint64, logins)
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := f.q.NextSessionID()
			ids <- id
			assert.NoError(t, f.q.Admit(alice, usertest.NewConn("c"), id))
		}()
	}
	wg.Wait()
	close(ids)

	var highest uint64
	for id := range ids {
		if id > highest {
			highest = id
		}
	}
	f.sync(t)
	f.sync(t)

	assert.Equal(t, 1, f.q.Registry().Count())
	s, ok := f.q.Registry().Get(alice.UserID)
	require.True(t, ok)
	assert.Equal(t, highest, s.SessionID)
	terminated, _ := s.Conn.(*usertest.Conn).Terminated()
	assert.False(t, terminated)
}

func TestUpdateBroadcastsPresenceChanges(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.q.Admit(alice, usertest.NewConn("addr"), 1))

	require.NoError(t, f.q.SetStatus(alice.UserID, user.StatusPlaying, 3))
	require.NoError(t, f.q.SetStatus(alice.UserID, user.StatusPlaying, 3))
	require.NoError(t, f.q.SetInactive(alice.UserID, true))
	require.NoError(t, f.q.SetStatus(99, user.StatusPlaying, 3))
	f.sync(t)

	presence := f.broadcast.commands("user")
	require.Len(t, presence, 3)
	playing := presence[1].(user.Info)
	assert.Equal(t, user.StatusPlaying, playing.Status)
	assert.Equal(t, 3, playing.TableID)
	assert.True(t, presence[2].(user.Info).Inactive)

	s, _ := f.q.Registry().Get(alice.UserID)
	assert.True(t, s.Inactive)
	_, ok := f.q.Registry().Get(99)
	assert.False(t, ok)
}

func TestMessagesReachDispatcher(t *testing.T) {
	f := newFixture(t)
	d := &fakeDispatcher{}
	f.q.SetDispatcher(d)
	conn := usertest.NewConn("addr")

	require.NoError(t, f.q.Admit(alice, conn, 7))
	f.sync(t)
	conn.Receive([]byte(`action {"type":2}`))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []dispatched{{userID: 1, sessionID: 7, data: `action {"type":2}`}}, d.got)
}

func TestShutdownDisconnectsEveryone(t *testing.T) {
	f := newFixture(t)
	a := usertest.NewConn("a")
	b := usertest.NewConn("b")
	require.NoError(t, f.q.Admit(alice, a, 1))
	require.NoError(t, f.q.Admit(user.Identity{UserID: 2, Username: "Bob"}, b, 2))
	f.sync(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, f.q.Shutdown(ctx, "The server is restarting."))

	for _, c := range []*usertest.Conn{a, b} {
		terminated, notice := c.Terminated()
		assert.True(t, terminated)
		assert.Equal(t, "The server is restarting.", notice)
	}
	assert.Equal(t, 0, f.q.Registry().Count())

	err := f.q.Admit(alice, usertest.NewConn("late"), 3)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
