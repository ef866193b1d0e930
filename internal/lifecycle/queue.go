// Package lifecycle serializes logins and logouts for the whole process.
// Its queue is the only writer of the user registry.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/metrics"
	"github.com/hanabi-live/hanabi-server-go/internal/queue"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// ErrQueueClosed is returned once the queue has stopped accepting events.
var ErrQueueClosed = errors.New("lifecycle queue closed")

const (
	supersededNotice = "You have logged on from somewhere else, so you have been disconnected here."
	staleNotice      = "A newer connection for this account is already active."
)

type event interface {
	name() string
}

type admitEvent struct {
	identity  user.Identity
	conn      user.Conn
	sessionID uint64
}

type dismissEvent struct {
	userID    int
	sessionID uint64
}

type updateEvent struct {
	userID int
	fn     func(*user.Session)
}

type syncEvent struct {
	done chan struct{}
}

func (admitEvent) name() string   { return "admit" }
func (dismissEvent) name() string { return "dismiss" }
func (updateEvent) name() string  { return "update" }
func (syncEvent) name() string    { return "sync" }

// Left is the payload of a userLeft broadcast.
type Left struct {
	UserID int `json:"userID"`
}

// Queue processes lifecycle events one at a time in arrival order.
type Queue struct {
	registry       *user.Registry
	writer         *user.Writer
	serial         *queue.Serial[event]
	store          Store
	broadcast      Broadcaster
	executor       Executor
	index          TableIndex
	metrics        *metrics.Metrics
	logger         *zap.Logger
	welcomeTimeout time.Duration
	indexTimeout   time.Duration
	now            func() time.Time
	sessions       atomic.Uint64

	mu         sync.RWMutex
	tables     TableDirectory
	dispatcher Dispatcher
}

// Option configures a Queue.
type Option func(*Queue)

// WithExecutor runs welcome delivery on e instead of a bare goroutine.
func WithExecutor(e Executor) Option {
	return func(q *Queue) { q.executor = e }
}

// WithTableIndex consults shared storage when a user logs out.
func WithTableIndex(idx TableIndex) Option {
	return func(q *Queue) { q.index = idx }
}

// WithMetrics records admissions, dismissals and registry size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithWelcomeTimeout bounds the persistence reads behind a welcome payload.
func WithWelcomeTimeout(d time.Duration) Option {
	return func(q *Queue) { q.welcomeTimeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New starts a queue that owns writer. store may be nil, in which case
// welcome payloads carry defaults only.
func New(writer *user.Writer, store Store, broadcast Broadcaster, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		registry:       writer.Registry(),
		writer:         writer,
		store:          store,
		broadcast:      broadcast,
		executor:       goExecutor{},
		logger:         logger,
		welcomeTimeout: 5 * time.Second,
		indexTimeout:   time.Second,
		now:            time.Now,
		tables:         noTables{},
	}
	for _, opt := range opts {
		opt(q)
	}
	q.serial = queue.NewSerial("lifecycle", q.handle, logger)
	return q
}

// SetTables connects the table registry. Call it before admitting users.
func (q *Queue) SetTables(d TableDirectory) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tables = d
}

// SetDispatcher installs the handler for inbound messages.
func (q *Queue) SetDispatcher(d Dispatcher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatcher = d
}

// Registry returns the read side of the user registry.
func (q *Queue) Registry() *user.Registry {
	return q.registry
}

// NextSessionID allocates a session identifier. Identifiers increase
// monotonically for the life of the process.
func (q *Queue) NextSessionID() uint64 {
	return q.sessions.Add(1)
}

// Admit queues a login.
func (q *Queue) Admit(identity user.Identity, conn user.Conn, sessionID uint64) error {
	return q.push(admitEvent{identity: identity, conn: conn, sessionID: sessionID})
}

// Dismiss queues a logout. It is a no-op if a newer session has replaced
// the one being dismissed by the time it is processed.
func (q *Queue) Dismiss(userID int, sessionID uint64) error {
	return q.push(dismissEvent{userID: userID, sessionID: sessionID})
}

// Update queues a change to a logged in user's session and broadcasts the
// new presence record if it changed.
func (q *Queue) Update(userID int, fn func(*user.Session)) error {
	return q.push(updateEvent{userID: userID, fn: fn})
}

// SetStatus queues a status change.
func (q *Queue) SetStatus(userID int, status user.Status, tableID int) error {
	return q.Update(userID, func(s *user.Session) {
		s.Status = status
		s.TableID = tableID
	})
}

// SetInactive queues an inactivity change.
func (q *Queue) SetInactive(userID int, inactive bool) error {
	return q.Update(userID, func(s *user.Session) {
		s.Inactive = inactive
	})
}

// Sync waits until every event queued before it has been processed.
func (q *Queue) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := q.push(syncEvent{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown disconnects every user, waits for their logouts and stops the queue.
func (q *Queue) Shutdown(ctx context.Context, notice string) error {
	for _, s := range q.registry.All() {
		s.Conn.Terminate(notice)
	}
	if err := q.Sync(ctx); err != nil && !errors.Is(err, ErrQueueClosed) {
		return err
	}
	q.Close()
	select {
	case <-q.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events. Queued events are still processed.
func (q *Queue) Close() {
	q.serial.Close()
}

// Done is closed once the queue has drained after Close.
func (q *Queue) Done() <-chan struct{} {
	return q.serial.Done()
}

func (q *Queue) push(ev event) error {
	if err := q.serial.Push(ev); err != nil {
		return fmt.Errorf("%s: %w", ev.name(), ErrQueueClosed)
	}
	return nil
}

func (q *Queue) tableDirectory() TableDirectory {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.tables
}

func (q *Queue) currentDispatcher() Dispatcher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dispatcher
}

func (q *Queue) handle(ev event) {
	switch e := ev.(type) {
	case admitEvent:
		q.admit(e)
	case dismissEvent:
		q.dismiss(e)
	case updateEvent:
		q.update(e)
	case syncEvent:
		close(e.done)
	default:
		q.logger.Error("unknown lifecycle event", zap.String("event", ev.name()))
	}
}

func (q *Queue) admit(e admitEvent) {
	logger := q.logger.With(
		zap.Int("user_id", e.identity.UserID),
		zap.String("username", e.identity.Username),
		zap.Uint64("session_id", e.sessionID),
	)

	if existing, ok := q.registry.Get(e.identity.UserID); ok {
		if existing.SessionID > e.sessionID {
			logger.Info("rejecting stale login", zap.Uint64("current_session_id", existing.SessionID))
			e.conn.Terminate(staleNotice)
			q.metrics.Admit("stale")
			return
		}
		logger.Info("replacing existing session", zap.Uint64("previous_session_id", existing.SessionID))
		existing.Conn.Terminate(supersededNotice)
	}

	s := user.Session{
		Identity:    e.identity,
		SessionID:   e.sessionID,
		ConnID:      uuid.NewString(),
		Conn:        e.conn,
		Status:      user.StatusLobby,
		TableID:     user.NoTable,
		ConnectedAt: q.now(),
	}
	logger.Info("logging in user",
		zap.String("remote_addr", e.conn.RemoteAddr()),
		zap.String("conn_id", s.ConnID),
	)
	q.writer.Set(s)
	q.attach(s)
	q.metrics.Admit("admitted")
	q.metrics.SetSessions(q.registry.Count())

	q.broadcast.SendAll("user", s.Info())

	tables := q.tableDirectory()
	for _, tableID := range tables.TableIDsUserIsPlayingAt(s.UserID) {
		if err := tables.SetConnected(tableID, s.UserID, true); err != nil {
			logger.Debug("failed to mark player connected", zap.Int("table_id", tableID), zap.Error(err))
		}
	}

	// Welcome delivery reads persistence; it must never hold up the queue.
	q.executor.Post(func() {
		q.sendInitial(s)
	})
}

func (q *Queue) attach(s user.Session) {
	userID, sessionID := s.UserID, s.SessionID
	s.Conn.Attach(user.Handlers{
		OnMessage: func(data []byte) {
			d := q.currentDispatcher()
			if d == nil {
				q.logger.Debug("dropping message, no dispatcher", zap.Int("user_id", userID))
				return
			}
			d.Dispatch(userID, sessionID, data)
		},
		OnClose: func() {
			if err := q.Dismiss(userID, sessionID); err != nil {
				q.logger.Debug("failed to queue logout", zap.Int("user_id", userID), zap.Error(err))
			}
		},
	})
}

func (q *Queue) dismiss(e dismissEvent) {
	logger := q.logger.With(
		zap.Int("user_id", e.userID),
		zap.Uint64("session_id", e.sessionID),
	)

	existing, ok := q.registry.Get(e.userID)
	if !ok {
		logger.Debug("ignoring logout of absent user")
		q.metrics.Dismiss("absent")
		return
	}
	// A newer login already replaced this connection.
	if existing.SessionID > e.sessionID {
		logger.Debug("ignoring stale logout", zap.Uint64("current_session_id", existing.SessionID))
		q.metrics.Dismiss("stale")
		return
	}

	logger.Info("logging out user",
		zap.String("username", existing.Username),
		zap.String("remote_addr", existing.Conn.RemoteAddr()),
	)
	q.writer.Delete(e.userID)

	tables := q.tableDirectory()
	for _, tableID := range q.tablesContaining(tables, e.userID) {
		if err := tables.SetConnected(tableID, e.userID, false); err != nil {
			logger.Debug("failed to mark player disconnected", zap.Int("table_id", tableID), zap.Error(err))
		}
	}
	q.metrics.Dismiss("removed")
	q.metrics.SetSessions(q.registry.Count())

	q.broadcast.SendAll("userLeft", Left{UserID: e.userID})
}

func (q *Queue) tablesContaining(tables TableDirectory, userID int) []int {
	local := tables.TablesContainingUser(userID)
	if q.index == nil {
		return local
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.indexTimeout)
	defer cancel()
	indexed, err := q.index.TablesContainingUser(ctx, userID)
	if err != nil {
		q.logger.Warn("table index lookup failed, using local registry",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return local
	}
	return lo.Union(local, indexed)
}

func (q *Queue) update(e updateEvent) {
	before, ok := q.registry.Get(e.userID)
	if !ok {
		return
	}
	after, _ := q.writer.Update(e.userID, e.fn)
	if before.Info() != after.Info() {
		q.broadcast.SendAll("user", after.Info())
	}
}
