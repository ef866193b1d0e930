package table

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/metrics"
	"github.com/hanabi-live/hanabi-server-go/internal/queue"
)

const tracerName = "github.com/hanabi-live/hanabi-server-go/internal/table"

// CreateParams describes a new table.
type CreateParams struct {
	OwnerID   int
	OwnerName string
	Name      string
	Password  string
	Options   game.Options
}

// Manager is the process-wide table registry.
type Manager struct {
	mu          sync.RWMutex
	tables      map[int]*Table
	nextID      int
	spectating  map[int]Spectating
	presence    Presence
	broadcast   Broadcaster
	executor    Executor
	index       Index
	timers      *Timers
	ownsTimers  bool
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *zap.Logger
	idleTimeout time.Duration
	replayDir   string
	recorder    Recorder
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor runs detached work such as index writes and replay saves.
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.executor = e }
}

// WithIndex mirrors membership into shared storage.
func WithIndex(idx Index) Option {
	return func(m *Manager) { m.index = idx }
}

// WithTimers shares a timing wheel. The caller starts and stops it.
func WithTimers(t *Timers) Option {
	return func(m *Manager) { m.timers = t }
}

// WithMetrics records action counts and latencies.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithTracer overrides the global tracer.
func WithTracer(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

// WithIdleTimeout ends tables with no activity for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithReplayDir saves a replay of every finished game into dir.
func WithReplayDir(dir string) Option {
	return func(m *Manager) { m.replayDir = dir }
}

// WithRecorder persists a summary of every finished game.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates an empty table registry.
func NewManager(presence Presence, broadcast Broadcaster, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		tables:     make(map[int]*Table),
		nextID:     1,
		spectating: make(map[int]Spectating),
		presence:   presence,
		broadcast:  broadcast,
		executor:   goExecutor{},
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timers == nil {
		m.timers = NewTimers(50*time.Millisecond, 64)
		m.timers.Start()
		m.ownsTimers = true
	}
	return m
}

// Create registers a new table and seats its owner.
func (m *Manager) Create(ctx context.Context, params CreateParams) (int, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = fmt.Sprintf("%s's game", params.OwnerName)
	}
	if _, err := params.Options.Resolve(game.MinPlayers); err != nil {
		return 0, reject(ReasonInvalidOptions, "Invalid game options: %v", err)
	}

	var hash []byte
	if params.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("failed to hash table password: %w", err)
		}
		hash = h
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	t := &Table{
		ID:           id,
		Name:         name,
		OwnerID:      params.OwnerID,
		Options:      params.Options,
		CreatedAt:    m.now(),
		passwordHash: hash,
		notes:        make(map[int]map[int]string),
	}
	t.queue = queue.NewSerial(fmt.Sprintf("table-%d", id), func(req *request) {
		m.handle(t, req)
	}, m.logger, queue.WithPanicHandler(func(req *request, recovered any) {
		if req.reply != nil {
			req.reply <- fmt.Errorf("table %d: %s panicked: %v", t.ID, req.action.Kind(), recovered)
		}
	}))
	initial, _ := t.buildView(t.CreatedAt)
	t.view.Store(initial)
	m.tables[id] = t
	count := len(m.tables)
	m.mu.Unlock()

	m.metrics.SetTables(count)
	m.logger.Info("table created",
		zap.Int("table_id", id),
		zap.String("name", name),
		zap.Int("owner_id", params.OwnerID),
	)

	if err := m.Submit(ctx, id, Join{UserID: params.OwnerID, Name: params.OwnerName}); err != nil {
		_ = m.enqueue(t, discardTable{})
		return 0, err
	}
	return id, nil
}

// Submit applies an action on the table's queue and waits for the result:
// nil if it was accepted, a *game.Rejection if it was refused.
func (m *Manager) Submit(ctx context.Context, tableID int, action Action) error {
	t, ok := m.get(tableID)
	if !ok {
		return fmt.Errorf("table %d: %w", tableID, ErrTableNotFound)
	}
	req := &request{ctx: ctx, action: action, reply: make(chan error, 1)}
	if err := t.queue.Push(req); err != nil {
		return fmt.Errorf("table %d: %w", tableID, ErrQueueClosed)
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends an action without waiting for it.
func (m *Manager) Enqueue(tableID int, action Action) error {
	t, ok := m.get(tableID)
	if !ok {
		return fmt.Errorf("table %d: %w", tableID, ErrTableNotFound)
	}
	return m.enqueue(t, action)
}

func (m *Manager) enqueue(t *Table, action Action) error {
	if err := t.queue.Push(&request{ctx: context.Background(), action: action}); err != nil {
		return fmt.Errorf("table %d: %w", t.ID, ErrQueueClosed)
	}
	return nil
}

// SetConnected queues a connection change for a participant.
func (m *Manager) SetConnected(tableID, userID int, connected bool) error {
	return m.Enqueue(tableID, SetConnected{UserID: userID, Connected: connected})
}

// View returns the last published view of a table.
func (m *Manager) View(tableID int) (View, error) {
	t, ok := m.get(tableID)
	if !ok {
		return View{}, fmt.Errorf("table %d: %w", tableID, ErrTableNotFound)
	}
	return *t.view.Load(), nil
}

// Count returns the number of tables.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

// Views returns every table's view ordered by ID.
func (m *Manager) Views() []View {
	m.mu.RLock()
	views := make([]View, 0, len(m.tables))
	for _, t := range m.tables {
		views = append(views, *t.view.Load())
	}
	m.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].Summary.ID < views[j].Summary.ID
	})
	return views
}

// Summaries returns the lobby entry of every table ordered by ID.
func (m *Manager) Summaries() []Summary {
	views := m.Views()
	out := make([]Summary, len(views))
	for i, v := range views {
		out[i] = v.Summary
	}
	return out
}

// TablesContainingUser returns the tables where the user is seated or
// spectating.
func (m *Manager) TablesContainingUser(userID int) []int {
	var ids []int
	for _, v := range m.Views() {
		if v.Seated(userID) || v.Watching(userID) {
			ids = append(ids, v.Summary.ID)
		}
	}
	return ids
}

// TableIDsUserIsPlayingAt returns the unfinished tables where the user holds
// a seat.
func (m *Manager) TableIDsUserIsPlayingAt(userID int) []int {
	ids := []int{}
	for _, v := range m.Views() {
		if v.Summary.SharedReplay {
			continue
		}
		if v.Seated(userID) {
			ids = append(ids, v.Summary.ID)
		}
	}
	return ids
}

// SpectatingMetadata returns the table a user was watching when they last
// disconnected.
func (m *Manager) SpectatingMetadata(userID int) (Spectating, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spectating[userID]
	return s, ok
}

// Close stops every table queue and waits for them to drain.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	tables := make([]*Table, 0, len(m.tables))
	for _, t := range m.tables {
		tables = append(tables, t)
	}
	m.mu.RUnlock()

	for _, t := range tables {
		t.queue.Close()
	}
	for _, t := range tables {
		select {
		case <-t.queue.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for table %d: %w", t.ID, ctx.Err())
		}
	}
	if m.ownsTimers {
		m.timers.Stop()
	}
	return nil
}

func (m *Manager) get(tableID int) (*Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[tableID]
	return t, ok
}

// remove drops the table from the registry. Runs on the table's queue.
func (m *Manager) remove(t *Table) {
	if t.removed {
		return
	}
	t.removed = true
	stopTimer(t.turnTimer)
	stopTimer(t.idleTimer)

	m.mu.Lock()
	delete(m.tables, t.ID)
	for userID, s := range m.spectating {
		if s.TableID == t.ID {
			delete(m.spectating, userID)
		}
	}
	count := len(m.tables)
	m.mu.Unlock()

	for _, p := range t.players {
		m.indexRemove(t, p.UserID)
	}
	for _, s := range t.spectators {
		m.indexRemove(t, s.UserID)
	}
	t.queue.Close()

	m.metrics.SetTables(count)
	m.broadcast.SendAll("tableGone", map[string]int{"tableID": t.ID})
	m.logger.Info("table removed", zap.Int("table_id", t.ID))
}

func (m *Manager) rememberSpectator(userID int, s Spectating) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spectating[userID] = s
}

func (m *Manager) forgetSpectator(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spectating, userID)
}

func (m *Manager) indexAdd(t *Table, userID int) {
	m.indexWrite(t, indexOp{userID: userID, add: true})
}

func (m *Manager) indexRemove(t *Table, userID int) {
	m.indexWrite(t, indexOp{userID: userID})
}

// indexWrite queues a membership write. A table's writes reach the index in
// the order they were made, one at a time.
func (m *Manager) indexWrite(t *Table, op indexOp) {
	if m.index == nil {
		return
	}
	t.indexMu.Lock()
	t.indexOps = append(t.indexOps, op)
	if t.indexBusy {
		t.indexMu.Unlock()
		return
	}
	t.indexBusy = true
	t.indexMu.Unlock()

	m.executor.Post(func() { m.drainIndex(t) })
}

func (m *Manager) drainIndex(t *Table) {
	for {
		t.indexMu.Lock()
		if len(t.indexOps) == 0 {
			t.indexBusy = false
			t.indexMu.Unlock()
			return
		}
		op := t.indexOps[0]
		t.indexOps = t.indexOps[1:]
		t.indexMu.Unlock()

		m.applyIndexOp(t.ID, op)
	}
}

func (m *Manager) applyIndexOp(tableID int, op indexOp) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	msg := "failed to index table member"
	if op.add {
		err = m.index.Add(ctx, tableID, op.userID)
	} else {
		msg = "failed to unindex table member"
		err = m.index.Remove(ctx, tableID, op.userID)
	}
	if err != nil {
		m.logger.Warn(msg,
			zap.Int("table_id", tableID),
			zap.Int("user_id", op.userID),
			zap.Error(err),
		)
	}
}
