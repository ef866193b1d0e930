// Package command turns inbound client frames into table actions.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/metrics"
	"github.com/hanabi-live/hanabi-server-go/internal/protocol"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

const defaultTimeout = 10 * time.Second

// Tables is the part of the table registry commands drive.
type Tables interface {
	Create(ctx context.Context, params table.CreateParams) (int, error)
	Submit(ctx context.Context, tableID int, action table.Action) error
}

// Presence records lobby state that does not belong to a table.
type Presence interface {
	SetInactive(userID int, inactive bool) error
}

type handlerFunc func(ctx context.Context, s user.Session, payload json.RawMessage) error

// Dispatcher routes commands from logged in sessions.
type Dispatcher struct {
	tables   Tables
	registry *user.Registry
	presence Presence
	defaults game.Options
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDefaults fills options a tableCreate leaves unset.
func WithDefaults(opts game.Options) Option {
	return func(d *Dispatcher) { d.defaults = opts }
}

// WithMetrics counts handled commands.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTimeout bounds how long one command may wait on its table.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// New creates a dispatcher.
func New(tables Tables, registry *user.Registry, presence Presence, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		tables:   tables,
		registry: registry,
		presence: presence,
		timeout:  defaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[string]handlerFunc{
		"tableCreate":   d.tableCreate,
		"tableJoin":     d.tableJoin,
		"tableLeave":    d.tableLeave,
		"tableStart":    d.tableStart,
		"tableSpectate": d.tableSpectate,
		"tableUnattend": d.tableUnattend,
		"action":        d.action,
		"note":          d.note,
		"inactive":      d.inactive,
	}
	return d
}

// Dispatch handles one frame from the given session. Frames from a session
// that is no longer current are dropped.
func (d *Dispatcher) Dispatch(userID int, sessionID uint64, data []byte) {
	s, ok := d.registry.Get(userID)
	if !ok || s.SessionID != sessionID {
		d.logger.Debug("dropping message from stale session",
			zap.Int("user_id", userID),
			zap.Uint64("session_id", sessionID),
		)
		d.metrics.Message("", "stale")
		return
	}

	command, payload, err := protocol.Decode(data)
	if err != nil {
		d.reply(s, "error", "That message was malformed.")
		d.metrics.Message(command, "malformed")
		return
	}
	handle, ok := d.handlers[command]
	if !ok {
		d.reply(s, "error", fmt.Sprintf("The command %q does not exist.", command))
		d.metrics.Message(command, "unknown")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	err = handle(ctx, s, payload)
	d.metrics.Message(command, d.result(s, command, err))
}

func (d *Dispatcher) result(s user.Session, command string, err error) string {
	if err == nil {
		return "ok"
	}
	if rej, ok := game.AsRejection(err); ok {
		d.reply(s, "warning", rej.Message)
		return "rejected"
	}
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		d.reply(s, "error", bad.Error())
		return "malformed"
	case errors.Is(err, table.ErrTableNotFound):
		d.reply(s, "warning", "That table does not exist.")
		return "rejected"
	}
	d.logger.Warn("command failed",
		zap.Int("user_id", s.UserID),
		zap.String("command", command),
		zap.Error(err),
	)
	d.reply(s, "error", "Something went wrong. Please try again.")
	return "error"
}

func (d *Dispatcher) reply(s user.Session, kind, message string) {
	if err := s.Conn.Send(kind, map[string]string{kind: message}); err != nil {
		d.logger.Debug("failed to reply", zap.Int("user_id", s.UserID), zap.Error(err))
	}
}

type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &badRequest{msg: "That message was malformed."}
	}
	return nil
}

// tableID prefers the id in the payload and falls back to the table the
// session is at.
func tableID(s user.Session, id int) (int, error) {
	if id != 0 {
		return id, nil
	}
	if s.TableID != user.NoTable {
		return s.TableID, nil
	}
	return 0, &badRequest{msg: "You are not at a table."}
}

type tableRef struct {
	TableID int `json:"tableID"`
}

type createRequest struct {
	Name     string       `json:"name"`
	Password string       `json:"password"`
	Options  game.Options `json:"options"`
}

func (d *Dispatcher) tableCreate(ctx context.Context, s user.Session, payload json.RawMessage) error {
	var req createRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	if err := mergo.Merge(&req.Options, d.defaults); err != nil {
		return fmt.Errorf("failed to apply default options: %w", err)
	}
	_, err := d.tables.Create(ctx, table.CreateParams{
		OwnerID:   s.UserID,
		OwnerName: s.Username,
		Name:      req.Name,
		Password:  req.Password,
		Options:   req.Options,
	})
	return err
}

type joinRequest struct {
	TableID  int    `json:"tableID"`
	Password string `json:"password"`
}

func (d *Dispatcher) tableJoin(ctx context.Context, s user.Session, payload json.RawMessage) error {
	var req joinRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	return d.tables.Submit(ctx, req.TableID, table.Join{UserID: s.UserID, Name: s.Username, Password: req.Password})
}

func (d *Dispatcher) tableLeave(ctx context.Context, s user.Session, payload json.RawMessage) error {
	return d.simple(ctx, s, payload, table.Leave{UserID: s.UserID})
}

func (d *Dispatcher) tableStart(ctx context.Context, s user.Session, payload json.RawMessage) error {
	return d.simple(ctx, s, payload, table.Start{UserID: s.UserID})
}

func (d *Dispatcher) tableUnattend(ctx context.Context, s user.Session, payload json.RawMessage) error {
	return d.simple(ctx, s, payload, table.Unattend{UserID: s.UserID})
}

func (d *Dispatcher) simple(ctx context.Context, s user.Session, payload json.RawMessage, action table.Action) error {
	var ref tableRef
	if err := decode(payload, &ref); err != nil {
		return err
	}
	id, err := tableID(s, ref.TableID)
	if err != nil {
		return err
	}
	return d.tables.Submit(ctx, id, action)
}

type spectateRequest struct {
	TableID              int  `json:"tableID"`
	ShadowingPlayerIndex *int `json:"shadowingPlayerIndex"`
}

func (d *Dispatcher) tableSpectate(ctx context.Context, s user.Session, payload json.RawMessage) error {
	var req spectateRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	seat := table.NoSeat
	if req.ShadowingPlayerIndex != nil {
		seat = *req.ShadowingPlayerIndex
	}
	return d.tables.Submit(ctx, req.TableID, table.Spectate{UserID: s.UserID, Name: s.Username, ShadowingSeat: seat})
}

type noteRequest struct {
	TableID int    `json:"tableID"`
	Order   int    `json:"order"`
	Note    string `json:"note"`
}

func (d *Dispatcher) note(ctx context.Context, s user.Session, payload json.RawMessage) error {
	var req noteRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	id, err := tableID(s, req.TableID)
	if err != nil {
		return err
	}
	return d.tables.Submit(ctx, id, table.Note{UserID: s.UserID, Order: req.Order, Text: req.Note})
}

type inactiveRequest struct {
	Inactive bool `json:"inactive"`
}

func (d *Dispatcher) inactive(_ context.Context, s user.Session, payload json.RawMessage) error {
	var req inactiveRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	return d.presence.SetInactive(s.UserID, req.Inactive)
}
