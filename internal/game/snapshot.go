package game

import (
	"fmt"

	"github.com/r3labs/diff/v3"
)

// Snapshot is the public view of a game that every viewer may see.
type Snapshot struct {
	Turn          int    `json:"turn" diff:"turn"`
	CurrentPlayer int    `json:"currentPlayerIndex" diff:"currentPlayerIndex"`
	Clues         int    `json:"clues" diff:"clues"`
	Strikes       int    `json:"strikes" diff:"strikes"`
	Score         int    `json:"score" diff:"score"`
	MaxScore      int    `json:"maxScore" diff:"maxScore"`
	DeckSize      int    `json:"deckSize" diff:"deckSize"`
	StackTops     []int  `json:"stackTops" diff:"stackTops"`
	DiscardCount  int    `json:"discardCount" diff:"discardCount"`
	Pace          int    `json:"pace" diff:"pace"`
	PaceRisk      string `json:"paceRisk" diff:"paceRisk"`
	TurnsLeft     int    `json:"turnsLeft" diff:"turnsLeft"`
	Status        string `json:"status" diff:"status"`
	EndCondition  string `json:"endCondition" diff:"endCondition"`
	Checksum      string `json:"checksum" diff:"checksum"`
}

// Snapshot returns the public view of the state. Its checksum leaves out
// the cards in hands.
func (g *GameState) Snapshot() (Snapshot, error) {
	checksum, err := g.PublicChecksum()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Turn:          g.Turns.Turn,
		CurrentPlayer: g.Turns.Current,
		Clues:         g.Clues,
		Strikes:       len(g.Strikes),
		Score:         g.Score,
		MaxScore:      g.MaxScore,
		DeckSize:      g.CardsLeft(),
		StackTops:     g.StackTops(),
		DiscardCount:  len(g.Discard),
		Pace:          g.Pace,
		PaceRisk:      g.PaceRisk.String(),
		TurnsLeft:     g.Turns.TurnsRemaining(),
		Status:        g.Status.String(),
		EndCondition:  g.EndCondition.String(),
		Checksum:      checksum.Hash,
	}, nil
}

// Snapshot returns the public view of the engine's current state.
func (e *Engine) Snapshot() (Snapshot, error) {
	return e.state.Snapshot()
}

// Delta is the set of fields that changed between two snapshots.
type Delta struct {
	FromTurn int            `json:"fromTurn"`
	ToTurn   int            `json:"toTurn"`
	Changes  diff.Changelog `json:"changes"`
}

// Diff computes the changes needed to go from prev to next.
func Diff(prev, next Snapshot) (Delta, error) {
	changes, err := diff.Diff(prev, next)
	if err != nil {
		return Delta{}, fmt.Errorf("failed to diff snapshots: %w", err)
	}
	return Delta{FromTurn: prev.Turn, ToTurn: next.Turn, Changes: changes}, nil
}
