package game

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Replay is a recorded game: the deal plus every move in order. Any
// position can be rebuilt by replaying a prefix of the moves. Checksum is
// the full checksum of the last position, empty when it was not recorded.
type Replay struct {
	GameID       string
	Players      []string
	Options      Options
	Deck         []CardIdentity
	Moves        []MoveRecord
	Checksum     string
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay for a deal.
func NewReplay(gameID string, players []string, opts Options, deck []CardIdentity) *Replay {
	return &Replay{
		GameID:  gameID,
		Players: append([]string(nil), players...),
		Options: opts,
		Deck:    append([]CardIdentity(nil), deck...),
		Moves:   make([]MoveRecord, 0),
	}
}

// Replay builds a replay of everything applied to the engine so far.
func (e *Engine) Replay(gameID string) *Replay {
	deck := make([]CardIdentity, len(e.state.Deck))
	for i, card := range e.state.Deck {
		deck[i] = card.Identity()
	}
	r := NewReplay(gameID, e.state.Players, e.state.Options, deck)
	for _, move := range e.state.Moves {
		r.RecordMove(move)
	}
	if checksum, err := e.state.ComputeChecksum(); err == nil {
		r.Checksum = checksum.Hash
	}
	return r
}

// RecordMove appends a move to the replay.
func (r *Replay) RecordMove(move MoveRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Moves = append(r.Moves, move)
}

// Size returns the number of recorded moves.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Moves)
}

// StateAt rebuilds the game after the first n moves.
func (r *Replay) StateAt(n int) (*GameState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stateAt(n)
}

func (r *Replay) stateAt(n int) (*GameState, error) {
	if n < 0 || n > len(r.Moves) {
		return nil, fmt.Errorf("replay position %d out of range [0, %d]", n, len(r.Moves))
	}
	engine, err := NewEngineWithDeck(r.Players, r.Options, r.Deck, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to deal replay: %w", err)
	}
	for i, rec := range r.Moves[:n] {
		move, err := rec.Move()
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i, err)
		}
		if _, err := engine.Apply(rec.Player, move); err != nil {
			return nil, fmt.Errorf("move %d does not apply: %w", i, err)
		}
	}
	return engine.state, nil
}

// Verify rebuilds the whole game and compares it with the recorded checksum.
func (r *Replay) Verify() error {
	r.mu.RLock()
	checksum, size := r.Checksum, len(r.Moves)
	r.mu.RUnlock()

	if checksum == "" {
		return errors.New("replay has no recorded checksum")
	}
	state, err := r.StateAt(size)
	if err != nil {
		return err
	}
	ok, err := state.VerifyChecksum(&SerializationChecksum{Hash: checksum})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("replay %s does not rebuild the recorded game", r.GameID)
	}
	return nil
}

// Start resets the replay to the deal.
func (r *Replay) Start() (*GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CurrentIndex = 0
	return r.stateAt(0)
}

// Next moves one move forward. It returns nil at the end of the game.
func (r *Replay) Next() (*GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex >= len(r.Moves) {
		return nil, nil
	}
	r.CurrentIndex++
	return r.stateAt(r.CurrentIndex)
}

// Skip moves by count moves, clamped to the ends of the game.
func (r *Replay) Skip(count int) (*GameState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newIndex := r.CurrentIndex + count
	if newIndex > len(r.Moves) {
		newIndex = len(r.Moves)
	}
	if newIndex < 0 {
		newIndex = 0
	}
	r.CurrentIndex = newIndex
	return r.stateAt(r.CurrentIndex)
}

// replayMetadata contains information about a saved replay
type replayMetadata struct {
	GameID    string
	Timestamp time.Time
	Version   int
	MoveCount int
	Checksum  string
}

const replayVersion = 1

// SaveToFile writes the replay to <directory>/<gameID>.replay as gzipped gob.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", r.GameID))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		GameID:    r.GameID,
		Timestamp: time.Now(),
		Version:   replayVersion,
		MoveCount: len(r.Moves),
		Checksum:  r.Checksum,
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := encoder.Encode(r.Players); err != nil {
		return fmt.Errorf("failed to encode players: %w", err)
	}
	if err := encoder.Encode(&r.Options); err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	if err := encoder.Encode(r.Deck); err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}
	for i := range r.Moves {
		if err := encoder.Encode(&r.Moves[i]); err != nil {
			return fmt.Errorf("failed to encode move %d: %w", i, err)
		}
	}

	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", gameID))

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	var (
		players []string
		opts    Options
		deck    []CardIdentity
	)
	if err := decoder.Decode(&players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	if err := decoder.Decode(&opts); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if err := decoder.Decode(&deck); err != nil {
		return nil, fmt.Errorf("failed to decode deck: %w", err)
	}

	replay := NewReplay(metadata.GameID, players, opts, deck)
	replay.Checksum = metadata.Checksum
	for i := 0; i < metadata.MoveCount; i++ {
		var move MoveRecord
		if err := decoder.Decode(&move); err != nil {
			return nil, fmt.Errorf("failed to decode move %d: %w", i, err)
		}
		replay.Moves = append(replay.Moves, move)
	}

	return replay, nil
}
