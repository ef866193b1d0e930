package game

import (
	"fmt"

	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
)

// Move is an action submitted to the engine. The concrete types are
// ClueMove, PlayMove, DiscardMove, ConcedeMove, TimeLimitMove and IdleLimitMove.
type Move interface {
	Kind() rules.MoveKind
}

// ClueMove gives a clue to another player.
type ClueMove struct {
	Target int
	Clue   Clue
}

// PlayMove attempts to play a card from the player's own hand.
type PlayMove struct {
	Order int
}

// DiscardMove discards a card from the player's own hand.
type DiscardMove struct {
	Order int
}

// ConcedeMove ends the game early at a player's request.
type ConcedeMove struct{}

// TimeLimitMove ends a timed game whose current player ran out of time.
type TimeLimitMove struct{}

// IdleLimitMove ends a game nobody has acted in for too long.
type IdleLimitMove struct{}

func (ClueMove) Kind() rules.MoveKind      { return rules.MoveClue }
func (PlayMove) Kind() rules.MoveKind      { return rules.MovePlay }
func (DiscardMove) Kind() rules.MoveKind   { return rules.MoveDiscard }
func (ConcedeMove) Kind() rules.MoveKind   { return rules.MoveConcede }
func (TimeLimitMove) Kind() rules.MoveKind { return rules.MoveTimeLimit }
func (IdleLimitMove) Kind() rules.MoveKind { return rules.MoveIdleLimit }

// MoveRecord is the flat, encodable form of a move kept in the game history.
type MoveRecord struct {
	Player int            `json:"playerIndex"`
	Kind   rules.MoveKind `json:"type"`
	Target int            `json:"target"`
	Order  int            `json:"order"`
	Clue   Clue           `json:"clue"`
}

// RecordMove converts a move into its history record.
func RecordMove(player int, m Move) MoveRecord {
	rec := MoveRecord{Player: player, Kind: m.Kind(), Target: -1, Order: -1}
	switch mv := m.(type) {
	case ClueMove:
		rec.Target = mv.Target
		rec.Clue = mv.Clue
	case PlayMove:
		rec.Order = mv.Order
	case DiscardMove:
		rec.Order = mv.Order
	}
	return rec
}

// Move converts the record back into a move.
func (r MoveRecord) Move() (Move, error) {
	switch r.Kind {
	case rules.MoveClue:
		return ClueMove{Target: r.Target, Clue: r.Clue}, nil
	case rules.MovePlay:
		return PlayMove{Order: r.Order}, nil
	case rules.MoveDiscard:
		return DiscardMove{Order: r.Order}, nil
	case rules.MoveConcede:
		return ConcedeMove{}, nil
	case rules.MoveTimeLimit:
		return TimeLimitMove{}, nil
	case rules.MoveIdleLimit:
		return IdleLimitMove{}, nil
	default:
		return nil, fmt.Errorf("unknown move kind %d", int(r.Kind))
	}
}

func moveInfo(player int, m Move) rules.MoveInfo {
	rec := RecordMove(player, m)
	return rules.MoveInfo{
		Kind:   rec.Kind,
		Player: player,
		Target: rec.Target,
		Order:  rec.Order,
		Clue:   rules.ClueInfo{Type: int(rec.Clue.Type), Value: rec.Clue.Value},
	}
}
