package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanabi-live/hanabi-server-go/internal/app"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/protocol"
	"github.com/hanabi-live/hanabi-server-go/internal/repository"
)

const waitTimeout = 3 * time.Second

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:         "127.0.0.1:0",
			WebSocketPath:   "/ws",
			WriteWait:       time.Second,
			PongWait:        10 * time.Second,
			SendBuffer:      64,
			MessageRate:     1000,
			MessageBurst:    1000,
			ShutdownTimeout: 2 * time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Auth:    config.AuthConfig{AllowInsecure: true},
		Game: config.GameConfig{
			WelcomeTimeout: 2 * time.Second,
			WorkerPoolSize: 8,
			TimerTick:      10 * time.Millisecond,
			ReplayDir:      t.TempDir(),
			Defaults:       game.Options{VariantName: game.DefaultVariant},
		},
	}
}

type env struct {
	app   *app.App
	store *repository.MemoryStore
	http  *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repository.NewMemoryStore()
	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t), "test", app.WithStore(store))
	require.NoError(t, err)
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return &env{app: a, store: store, http: ts}
}

type frame struct {
	command string
	payload json.RawMessage
}

type client struct {
	t      *testing.T
	ws     *websocket.Conn
	frames chan frame
	closed chan error
}

func (e *env) connect(t *testing.T, userID int, username string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws?userID=" + itoa(userID) + "&username=" + username
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	c := &client{t: t, ws: ws, frames: make(chan frame, 256), closed: make(chan error, 1)}
	go c.read()
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

func (c *client) read() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closed <- err
			close(c.frames)
			return
		}
		command, payload, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		c.frames <- frame{command: command, payload: payload}
	}
}

func (c *client) send(command string, payload any) {
	c.t.Helper()
	data, err := protocol.Encode(command, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, data))
}

// expect skips frames until one with the given command arrives.
func (c *client) expect(command string, v any) {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", command)
			}
			if f.command != command {
				continue
			}
			if v != nil {
				require.NoError(c.t, json.Unmarshal(f.payload, v))
			}
			return
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", command)
		}
	}
}

func (c *client) expectClosed() {
	c.t.Helper()
	select {
	case <-c.closed:
	case <-time.After(waitTimeout):
		c.t.Fatal("connection was not closed")
	}
}

type welcome struct {
	UserID          int    `json:"userID"`
	Username        string `json:"username"`
	TotalGames      int    `json:"totalGames"`
	FirstTimeUser   bool   `json:"firstTimeUser"`
	PlayingAtTables []int  `json:"playingAtTables"`
}

type summary struct {
	ID           int      `json:"id"`
	Players      []string `json:"players"`
	Running      bool     `json:"running"`
	SharedReplay bool     `json:"sharedReplay"`
}

func TestLobbyToGameOver(t *testing.T) {
	e := newEnv(t)

	alice := e.connect(t, 1, "Alice")
	var w welcome
	alice.expect("welcome", &w)
	assert.Equal(t, 1, w.UserID)
	assert.Equal(t, "Alice", w.Username)
	assert.True(t, w.FirstTimeUser)
	assert.Empty(t, w.PlayingAtTables)
	alice.expect("userList", nil)
	alice.expect("tableList", nil)

	bob := e.connect(t, 2, "Bob")
	bob.expect("welcome", nil)
	var presence struct {
		UserID int    `json:"userID"`
		Name   string `json:"name"`
	}
	alice.expect("user", &presence)
	for presence.UserID != 2 {
		alice.expect("user", &presence)
	}
	assert.Equal(t, "Bob", presence.Name)

	alice.send("tableCreate", map[string]any{"name": "friendly"})
	var tbl summary
	alice.expect("table", &tbl)
	require.NotZero(t, tbl.ID)
	assert.Equal(t, []string{"Alice"}, tbl.Players)

	bob.send("tableJoin", map[string]any{"tableID": tbl.ID})
	bob.expect("table", &tbl)
	for len(tbl.Players) != 2 {
		bob.expect("table", &tbl)
	}
	alice.send("tableStart", map[string]any{"tableID": tbl.ID})
	alice.expect("gameInit", nil)
	bob.expect("gameInit", nil)

	view, err := e.app.Tables().View(tbl.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Game)
	waiting := bob
	if view.Game.CurrentPlayer == 1 {
		waiting = alice
	}
	waiting.send("action", map[string]any{"tableID": tbl.ID, "type": 0, "target": 0})
	waiting.expect("warning", nil)

	// Bob logs on again from a second device mid-game.
	bob2 := e.connect(t, 2, "Bob")
	var errPayload map[string]string
	bob.expect("error", &errPayload)
	assert.Contains(t, errPayload["error"], "logged on from somewhere else")
	bob.expectClosed()
	bob2.expect("welcome", &w)
	assert.Equal(t, []int{tbl.ID}, w.PlayingAtTables)

	bob2.send("action", map[string]any{"tableID": tbl.ID, "type": 4})
	alice.expect("gameAction", nil)
	require.Eventually(t, func() bool {
		v, err := e.app.Tables().View(tbl.ID)
		return err == nil && v.Summary.SharedReplay
	}, waitTimeout, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(e.store.Games()) == 1
	}, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []int{1, 2}, e.store.Games()[0].PlayerIDs)

	require.NoError(t, bob2.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	var left struct {
		UserID int `json:"userID"`
	}
	alice.expect("userLeft", &left)
	assert.Equal(t, 2, left.UserID)

	bob3 := e.connect(t, 2, "Bob")
	bob3.expect("welcome", &w)
	assert.Equal(t, 1, w.TotalGames)
	assert.Empty(t, w.PlayingAtTables)
}

func TestUnknownCommandIsReported(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, 1, "Alice")
	alice.expect("welcome", nil)

	alice.send("tableDance", nil)
	var payload map[string]string
	alice.expect("error", &payload)
	assert.Contains(t, payload["error"], "tableDance")

	alice.send("tableJoin", map[string]any{"tableID": 999})
	alice.expect("warning", &payload)
	assert.Equal(t, "That table does not exist.", payload["warning"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, 1, "Alice")
	alice.expect("welcome", nil)

	require.Eventually(t, func() bool {
		resp, err := http.Get(e.http.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "hanabi_sessions 1")
	}, waitTimeout, 20*time.Millisecond)
}

func TestShutdownDisconnectsClients(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, 1, "Alice")
	alice.expect("welcome", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.app.Shutdown(ctx))

	var payload map[string]string
	alice.expect("error", &payload)
	assert.Equal(t, app.ShutdownNotice, payload["error"])
	alice.expectClosed()
}
