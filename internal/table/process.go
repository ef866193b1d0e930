package table

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

const (
	maxNoteLength = 1000
	recordTimeout = 5 * time.Second
)

// ActionNotice carries the log entries a move produced, scrubbed for one viewer.
type ActionNotice struct {
	TableID int             `json:"tableID"`
	Entries []game.LogEntry `json:"entries"`
}

// DeltaNotice carries the public state change a move produced.
type DeltaNotice struct {
	TableID  int        `json:"tableID"`
	Delta    game.Delta `json:"delta"`
	Checksum string     `json:"checksum"`
}

// InitNotice is everything a client needs to draw a game it is attending.
type InitNotice struct {
	TableID    int                `json:"tableID"`
	GameID     string             `json:"gameID"`
	Players    []string           `json:"playerNames"`
	Seat       int                `json:"ourPlayerIndex"`
	Spectating bool               `json:"spectating"`
	Options    game.Options       `json:"options"`
	Log        []game.LogEntry    `json:"log"`
	Hands      [][]game.CardState `json:"hands"`
	Snapshot   game.Snapshot      `json:"snapshot"`
}

// SoundNotice tells a client which sound to play after a turn.
type SoundNotice struct {
	TableID int    `json:"tableID"`
	File    string `json:"file"`
}

// ConnectedNotice lists which seats currently have a live connection.
type ConnectedNotice struct {
	TableID int    `json:"tableID"`
	List    []bool `json:"list"`
}

// NoteEntry is one player's note on a card.
type NoteEntry struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// NotesNotice sends spectators every player's note on one card.
type NotesNotice struct {
	TableID int         `json:"tableID"`
	Order   int         `json:"order"`
	Notes   []NoteEntry `json:"notes"`
}

func (m *Manager) handle(t *Table, req *request) {
	kind := req.action.Kind()
	start := time.Now()
	_, span := m.tracer.Start(req.ctx, "table."+kind, trace.WithAttributes(
		attribute.Int("table.id", t.ID),
		attribute.String("table.action", kind),
	))
	defer span.End()

	var err error
	if t.removed {
		err = fmt.Errorf("table %d: %w", t.ID, ErrTableNotFound)
	} else {
		err = m.apply(t, req.action)
	}

	result := "ok"
	switch rej, isRejection := game.AsRejection(err); {
	case err == nil:
		if !t.removed {
			m.publish(t)
		}
	case isRejection:
		result = "rejected"
		span.SetAttributes(attribute.String("rejection.reason", string(rej.Reason)))
		m.logger.Debug("table action rejected",
			zap.Int("table_id", t.ID),
			zap.String("action", kind),
			zap.String("reason", string(rej.Reason)),
		)
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("table action failed",
			zap.Int("table_id", t.ID),
			zap.String("action", kind),
			zap.Error(err),
		)
	}
	m.metrics.Action(kind, result, time.Since(start))

	if req.reply != nil {
		req.reply <- err
	}
}

func (m *Manager) apply(t *Table, action Action) error {
	var err error
	activity := true
	switch a := action.(type) {
	case Join:
		err = m.join(t, a)
	case Leave:
		err = m.leave(t, a)
	case Start:
		err = m.start(t, a)
	case Spectate:
		err = m.spectate(t, a)
	case Unattend:
		err = m.unattend(t, a)
	case Note:
		err = m.note(t, a)
	case Move:
		err = m.move(t, a)
	case SetConnected:
		activity = false
		err = m.setConnected(t, a)
	case Terminate:
		activity = false
		err = m.terminate(t, a)
	case turnExpired:
		activity = false
		err = m.onTurnExpired(t, a)
	case idleExpired:
		activity = false
		err = m.onIdleExpired(t)
	case discardTable:
		activity = false
		m.disband(t)
	default:
		return fmt.Errorf("unknown table action %T", action)
	}
	if err == nil && activity && !t.removed {
		m.touch(t)
	}
	return err
}

func (m *Manager) join(t *Table, a Join) error {
	if t.started() {
		return reject(ReasonAlreadyStarted, "That game has already started.")
	}
	if t.player(a.UserID) != nil {
		return reject(ReasonAlreadyJoined, "You are already at this table.")
	}
	if len(t.players) >= game.MaxPlayers {
		return reject(ReasonTableFull, "That table is full.")
	}
	if len(t.passwordHash) > 0 && a.UserID != t.OwnerID {
		if err := bcrypt.CompareHashAndPassword(t.passwordHash, []byte(a.Password)); err != nil {
			return reject(ReasonWrongPassword, "That is not the correct password for this game.")
		}
	}

	t.removeSpectator(a.UserID)
	t.players = append(t.players, &Player{
		UserID:    a.UserID,
		Name:      a.Name,
		Seat:      len(t.players),
		Connected: true,
		Present:   true,
	})
	m.setStatus(a.UserID, user.StatusPreGame, t.ID)
	m.indexAdd(t, a.UserID)
	m.announce(t)
	return nil
}

func (m *Manager) leave(t *Table, a Leave) error {
	if t.player(a.UserID) == nil {
		return reject(ReasonNotAtTable, "You are not at that table.")
	}
	if t.started() {
		return reject(ReasonAlreadyStarted, "You cannot leave a game that has already started.")
	}
	if a.UserID == t.OwnerID {
		m.disband(t)
		return nil
	}

	t.removePlayer(a.UserID)
	m.setStatus(a.UserID, user.StatusLobby, user.NoTable)
	m.indexRemove(t, a.UserID)
	if t.abandoned() {
		m.remove(t)
		return nil
	}
	m.announce(t)
	return nil
}

func (m *Manager) start(t *Table, a Start) error {
	if a.UserID != t.OwnerID {
		return reject(ReasonNotOwner, "Only the owner of the table can start the game.")
	}
	if t.started() {
		return reject(ReasonAlreadyStarted, "The game has already started.")
	}
	if len(t.players) < game.MinPlayers {
		return reject(ReasonNotEnoughPlayers, "You need at least %d players to start a game.", game.MinPlayers)
	}

	names := make([]string, len(t.players))
	for i, p := range t.players {
		names[i] = p.Name
	}
	engine, err := game.NewEngine(names, t.Options, m.logger.With(zap.Int("table_id", t.ID)))
	if err != nil {
		return reject(ReasonInvalidOptions, "Failed to start the game: %v", err)
	}
	snap, err := engine.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot new game: %w", err)
	}
	t.engine = engine
	m.watchEvents(t)
	t.gameID = uuid.NewString()
	t.startedAt = m.now()
	t.lastSnapshot = snap

	if t.Options.Timed {
		base := time.Duration(t.Options.TimeBaseSeconds) * time.Second
		t.clocks = make([]time.Duration, len(t.players))
		for i := range t.clocks {
			t.clocks[i] = base
		}
		t.turnStarted = m.now()
		m.scheduleTurn(t)
	}

	for _, p := range t.players {
		m.setStatus(p.UserID, user.StatusPlaying, t.ID)
	}
	for _, userID := range t.participants() {
		m.sendInit(t, userID)
	}
	m.announce(t)
	m.logger.Info("game started",
		zap.Int("table_id", t.ID),
		zap.String("game_id", t.gameID),
		zap.Strings("players", names),
	)
	return nil
}

func (m *Manager) spectate(t *Table, a Spectate) error {
	if p := t.player(a.UserID); p != nil {
		if !t.started() {
			return reject(ReasonAlreadyJoined, "You are already playing at this table.")
		}
		p.Present = true
		p.Connected = true
		m.setStatus(a.UserID, m.playerStatus(t), t.ID)
		m.sendInit(t, a.UserID)
		m.sendConnected(t)
		return nil
	}
	if a.ShadowingSeat != NoSeat && (a.ShadowingSeat < 0 || a.ShadowingSeat >= len(t.players)) {
		return reject(ReasonInvalidSeat, "Seat %d does not exist.", a.ShadowingSeat)
	}

	if s := t.spectator(a.UserID); s != nil {
		s.ShadowingSeat = a.ShadowingSeat
	} else {
		t.spectators = append(t.spectators, &Spectator{
			UserID:        a.UserID,
			Name:          a.Name,
			ShadowingSeat: a.ShadowingSeat,
		})
		m.indexAdd(t, a.UserID)
	}
	m.forgetSpectator(a.UserID)

	status := user.StatusSpectating
	if t.ended() {
		status = user.StatusSharedReplay
	}
	m.setStatus(a.UserID, status, t.ID)
	if t.started() {
		m.sendInit(t, a.UserID)
		m.sendAllNotes(t, a.UserID)
	}
	m.announce(t)
	return nil
}

func (m *Manager) unattend(t *Table, a Unattend) error {
	switch {
	case t.player(a.UserID) != nil:
		if !t.started() {
			return m.leave(t, Leave(a))
		}
		t.player(a.UserID).Present = false
	case t.spectator(a.UserID) != nil:
		t.removeSpectator(a.UserID)
		m.indexRemove(t, a.UserID)
	default:
		return reject(ReasonNotAtTable, "You are not at that table.")
	}

	m.setStatus(a.UserID, user.StatusLobby, user.NoTable)
	if t.ended() && t.abandoned() {
		m.remove(t)
		return nil
	}
	m.announce(t)
	return nil
}

func (m *Manager) setConnected(t *Table, a SetConnected) error {
	if p := t.player(a.UserID); p != nil {
		if p.Connected == a.Connected {
			return nil
		}
		p.Connected = a.Connected
		m.sendConnected(t)
		return nil
	}

	s := t.spectator(a.UserID)
	if s == nil || a.Connected {
		return nil
	}
	m.rememberSpectator(a.UserID, Spectating{TableID: t.ID, ShadowingSeat: s.ShadowingSeat})
	t.removeSpectator(a.UserID)
	m.indexRemove(t, a.UserID)
	if t.ended() && t.abandoned() {
		m.remove(t)
		return nil
	}
	m.announce(t)
	return nil
}

func (m *Manager) note(t *Table, a Note) error {
	if t.player(a.UserID) == nil {
		return reject(ReasonNotAtTable, "Only players can write notes.")
	}
	if !t.started() {
		return reject(ReasonNotStarted, "The game has not started yet.")
	}
	if a.Order < 0 || a.Order >= t.engine.NumCards() {
		return reject(ReasonInvalidNote, "Card %d does not exist.", a.Order)
	}
	text := strings.TrimSpace(a.Text)
	if len(text) > maxNoteLength {
		return reject(ReasonInvalidNote, "Notes cannot be longer than %d characters.", maxNoteLength)
	}

	notes, ok := t.notes[a.UserID]
	if !ok {
		notes = make(map[int]string)
		t.notes[a.UserID] = notes
	}
	if text == "" {
		delete(notes, a.Order)
	} else {
		notes[a.Order] = text
	}

	notice := NotesNotice{TableID: t.ID, Order: a.Order, Notes: t.notesFor(a.Order)}
	for _, s := range t.spectators {
		m.broadcast.Send(s.UserID, "notes", notice)
	}
	return nil
}

func (m *Manager) move(t *Table, a Move) error {
	p := t.player(a.UserID)
	if p == nil {
		return reject(ReasonNotAtTable, "You are not playing at this table.")
	}
	if !t.started() {
		return reject(ReasonNotStarted, "The game has not started yet.")
	}
	outcome, err := t.engine.Apply(p.Seat, a.Move)
	if err != nil {
		return err
	}
	m.afterMove(t, p.Seat, a.Move.Kind().TakesTurn(), outcome)
	return nil
}

func (m *Manager) terminate(t *Table, a Terminate) error {
	if t.running() {
		seat := 0
		if owner := t.player(t.OwnerID); owner != nil {
			seat = owner.Seat
		}
		outcome, err := t.engine.Apply(seat, game.ConcedeMove{})
		if err != nil {
			return err
		}
		m.afterMove(t, seat, false, outcome)
	}
	m.logger.Info("table terminated",
		zap.Int("table_id", t.ID),
		zap.String("reason", a.Reason),
	)
	m.disband(t)
	return nil
}

func (m *Manager) onTurnExpired(t *Table, a turnExpired) error {
	if !t.running() || t.lastSnapshot.Turn != a.turn {
		return nil
	}
	current := t.lastSnapshot.CurrentPlayer
	outcome, err := t.engine.Apply(current, game.TimeLimitMove{})
	if err != nil {
		return err
	}
	m.afterMove(t, current, false, outcome)
	return nil
}

func (m *Manager) onIdleExpired(t *Table) error {
	if m.now().Sub(t.lastActivity) < m.idleTimeout {
		return nil
	}
	if t.running() {
		outcome, err := t.engine.Apply(0, game.IdleLimitMove{})
		if err != nil {
			return err
		}
		m.afterMove(t, 0, false, outcome)
	}
	m.logger.Info("idle table ended", zap.Int("table_id", t.ID))
	m.disband(t)
	return nil
}

// afterMove distributes the effects of an applied move.
func (m *Manager) afterMove(t *Table, mover int, takesTurn bool, outcome *game.Outcome) {
	now := m.now()
	prev := t.lastSnapshot
	snap, err := t.engine.Snapshot()
	if err != nil {
		m.logger.Error("failed to snapshot game", zap.Int("table_id", t.ID), zap.Error(err))
	} else {
		t.lastSnapshot = snap
	}

	if t.Options.Timed && takesTurn && !outcome.Ended() {
		perTurn := time.Duration(t.Options.TimePerTurnSeconds) * time.Second
		t.clocks[mover] += perTurn - now.Sub(t.turnStarted)
		t.turnStarted = now
		m.scheduleTurn(t)
	}

	m.sendEntries(t, outcome.Entries)
	if err == nil {
		delta, err := game.Diff(prev, snap)
		if err != nil {
			m.logger.Error("failed to diff game", zap.Int("table_id", t.ID), zap.Error(err))
		} else {
			m.sendTable(t, "gameDelta", DeltaNotice{TableID: t.ID, Delta: delta, Checksum: snap.Checksum})
		}
	}

	if t.turnBegan {
		m.sendSound(t)
	}
	t.sound = ""
	t.turnBegan = false

	if outcome.Ended() {
		m.finishGame(t, outcome)
	}
}

// watchEvents hooks the table into its engine's events. Subscribers run
// inside Apply, on the table's queue goroutine.
func (m *Manager) watchEvents(t *Table) {
	events := t.engine.Events()
	t.eventSubs = []int{
		events.Subscribe(rules.EventAny, func(e rules.Event) {
			m.metrics.GameEvent(string(e.Type))
		}),
		events.Subscribe(rules.EventCardMisplayed, func(rules.Event) {
			t.sound = "fail"
		}),
		events.Subscribe(rules.EventTurnBegin, func(rules.Event) {
			t.turnBegan = true
		}),
	}
}

func (m *Manager) unwatchEvents(t *Table) {
	events := t.engine.Events()
	for _, handle := range t.eventSubs {
		events.Unsubscribe(handle)
	}
	t.eventSubs = nil
}

func (m *Manager) sendSound(t *Table) {
	soundFor := func(seat int) string {
		switch {
		case t.sound != "":
			return t.sound
		case seat == t.lastSnapshot.CurrentPlayer:
			return "turn_us"
		default:
			return "turn_other"
		}
	}
	for _, p := range t.players {
		if p.Present {
			m.broadcast.Send(p.UserID, "sound", SoundNotice{TableID: t.ID, File: soundFor(p.Seat)})
		}
	}
	for _, s := range t.spectators {
		m.broadcast.Send(s.UserID, "sound", SoundNotice{TableID: t.ID, File: soundFor(NoSeat)})
	}
}

func (m *Manager) finishGame(t *Table, outcome *game.Outcome) {
	stopTimer(t.turnTimer)
	t.turnTimer = nil
	m.unwatchEvents(t)

	for _, p := range t.players {
		if p.Present {
			m.setStatus(p.UserID, user.StatusSharedReplay, t.ID)
		}
	}
	for _, s := range t.spectators {
		m.setStatus(s.UserID, user.StatusSharedReplay, t.ID)
	}
	m.metrics.GameEnded(outcome.EndCondition.String())
	m.saveReplay(t)
	m.record(t, outcome)
	m.announce(t)
	m.logger.Info("game ended",
		zap.Int("table_id", t.ID),
		zap.String("game_id", t.gameID),
		zap.String("end_condition", outcome.EndCondition.String()),
		zap.Int("score", t.lastSnapshot.Score),
	)
}

func (m *Manager) saveReplay(t *Table) {
	if m.replayDir == "" {
		return
	}
	replay := t.engine.Replay(t.gameID)
	dir := m.replayDir
	m.executor.Post(func() {
		if err := replay.SaveToFile(dir); err != nil {
			m.logger.Error("failed to save replay",
				zap.String("game_id", replay.GameID),
				zap.Error(err),
			)
		}
	})
}

func (m *Manager) record(t *Table, outcome *game.Outcome) {
	if m.recorder == nil {
		return
	}
	rec := GameRecord{
		GameID:       t.gameID,
		TableID:      t.ID,
		Name:         t.Name,
		Variant:      t.Options.VariantName,
		Seed:         t.Options.Seed,
		Score:        t.lastSnapshot.Score,
		EndCondition: outcome.EndCondition.String(),
		StartedAt:    t.startedAt,
		EndedAt:      m.now(),
	}
	for _, p := range t.players {
		rec.PlayerIDs = append(rec.PlayerIDs, p.UserID)
	}
	m.executor.Post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.recorder.RecordGame(ctx, rec); err != nil {
			m.logger.Error("failed to record game",
				zap.String("game_id", rec.GameID),
				zap.Error(err),
			)
		}
	})
}

// disband returns everyone to the lobby and removes the table.
func (m *Manager) disband(t *Table) {
	for _, p := range t.players {
		if p.Present {
			m.setStatus(p.UserID, user.StatusLobby, user.NoTable)
		}
	}
	for _, s := range t.spectators {
		m.setStatus(s.UserID, user.StatusLobby, user.NoTable)
	}
	m.remove(t)
}

func (m *Manager) scheduleTurn(t *Table) {
	stopTimer(t.turnTimer)
	turn := t.lastSnapshot.Turn
	current := t.lastSnapshot.CurrentPlayer
	t.turnTimer = m.timers.AfterFunc(t.clocks[current], func() {
		_ = m.enqueue(t, turnExpired{turn: turn})
	})
}

func (m *Manager) touch(t *Table) {
	if m.idleTimeout <= 0 {
		return
	}
	t.lastActivity = m.now()
	stopTimer(t.idleTimer)
	t.idleTimer = m.timers.AfterFunc(m.idleTimeout, func() {
		_ = m.enqueue(t, idleExpired{})
	})
}

func (m *Manager) publish(t *Table) {
	v, err := t.buildView(m.now())
	if err != nil {
		m.logger.Error("failed to build table view", zap.Int("table_id", t.ID), zap.Error(err))
		return
	}
	t.view.Store(v)
}

func (m *Manager) playerStatus(t *Table) user.Status {
	if t.ended() {
		return user.StatusSharedReplay
	}
	return user.StatusPlaying
}

func (m *Manager) setStatus(userID int, status user.Status, tableID int) {
	if m.presence == nil {
		return
	}
	if err := m.presence.SetStatus(userID, status, tableID); err != nil {
		m.logger.Debug("failed to update user status",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
	}
}

func (m *Manager) announce(t *Table) {
	m.broadcast.SendAll("table", t.summary())
}

func (m *Manager) sendTable(t *Table, command string, payload any) {
	for _, userID := range t.participants() {
		m.broadcast.Send(userID, command, payload)
	}
}

func (m *Manager) sendConnected(t *Table) {
	list := make([]bool, len(t.players))
	for i, p := range t.players {
		list[i] = p.Connected && p.Present
	}
	m.sendTable(t, "connected", ConnectedNotice{TableID: t.ID, List: list})
}

func (m *Manager) sendEntries(t *Table, entries []game.LogEntry) {
	for _, p := range t.players {
		if p.Present {
			m.broadcast.Send(p.UserID, "gameAction", ActionNotice{
				TableID: t.ID,
				Entries: game.ScrubEntries(entries, p.Seat),
			})
		}
	}
	for _, s := range t.spectators {
		m.broadcast.Send(s.UserID, "gameAction", ActionNotice{
			TableID: t.ID,
			Entries: game.ScrubEntries(entries, s.ShadowingSeat),
		})
	}
}

func (m *Manager) sendInit(t *Table, userID int) {
	seat := NoSeat
	spectating := true
	if p := t.player(userID); p != nil {
		seat = p.Seat
		spectating = false
	} else if s := t.spectator(userID); s != nil {
		seat = s.ShadowingSeat
	}

	state, err := t.engine.State()
	if err != nil {
		m.logger.Error("failed to copy game state", zap.Int("table_id", t.ID), zap.Error(err))
		return
	}
	hands := make([][]game.CardState, len(state.Hands))
	for i := range hands {
		hands[i] = state.HandOf(i, seat)
	}
	m.broadcast.Send(userID, "gameInit", InitNotice{
		TableID:    t.ID,
		GameID:     t.gameID,
		Players:    state.Players,
		Seat:       seat,
		Spectating: spectating,
		Options:    state.Options,
		Log:        game.ScrubEntries(state.Log, seat),
		Hands:      hands,
		Snapshot:   t.lastSnapshot,
	})
}

func (m *Manager) sendAllNotes(t *Table, userID int) {
	orders := make(map[int]struct{})
	for _, notes := range t.notes {
		for order := range notes {
			orders[order] = struct{}{}
		}
	}
	for order := range orders {
		m.broadcast.Send(userID, "notes", NotesNotice{TableID: t.ID, Order: order, Notes: t.notesFor(order)})
	}
}

func (t *Table) notesFor(order int) []NoteEntry {
	var out []NoteEntry
	for _, p := range t.players {
		if text, ok := t.notes[p.UserID][order]; ok {
			out = append(out, NoteEntry{Name: p.Name, Text: text})
		}
	}
	return out
}
