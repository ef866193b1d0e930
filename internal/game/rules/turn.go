package rules

import "fmt"

// NoEndTurn marks a turn order whose final round has not started.
const NoEndTurn = -1

// TurnOrder tracks the seat whose turn it is and the final round.
// Fields are exported so the state can be copied and encoded with the rest of a game.
type TurnOrder struct {
	NumPlayers int `json:"numPlayers"`
	Turn       int `json:"turn"`
	Current    int `json:"currentPlayerIndex"`
	EndTurn    int `json:"endTurn"`
}

// NewTurnOrder creates a turn order at turn zero with startingPlayer to act.
func NewTurnOrder(numPlayers, startingPlayer int) (TurnOrder, error) {
	if numPlayers <= 0 {
		return TurnOrder{}, fmt.Errorf("invalid number of players: %d", numPlayers)
	}
	if startingPlayer < 0 || startingPlayer >= numPlayers {
		return TurnOrder{}, fmt.Errorf("starting player %d out of range", startingPlayer)
	}
	return TurnOrder{
		NumPlayers: numPlayers,
		Current:    startingPlayer,
		EndTurn:    NoEndTurn,
	}, nil
}

// Advance ends the current turn and passes it to the next seat.
func (t *TurnOrder) Advance() int {
	t.Turn++
	t.Current = (t.Current + 1) % t.NumPlayers
	return t.Current
}

// StartFinalRound records that the deck ran out on the current turn. Every
// player gets extraTurns more turns in total before the game ends. A final
// round only starts once.
func (t *TurnOrder) StartFinalRound(extraTurns int) bool {
	if t.FinalRoundStarted() {
		return false
	}
	t.EndTurn = t.Turn + 1 + extraTurns
	return true
}

// FinalRoundStarted reports whether the deck has run out.
func (t TurnOrder) FinalRoundStarted() bool {
	return t.EndTurn != NoEndTurn
}

// FinalRoundComplete reports whether the last turn of the final round has been taken.
func (t TurnOrder) FinalRoundComplete() bool {
	return t.FinalRoundStarted() && t.Turn >= t.EndTurn
}

// TurnsRemaining returns the turns left in the final round, or -1 when it has not started.
func (t TurnOrder) TurnsRemaining() int {
	if !t.FinalRoundStarted() {
		return -1
	}
	if t.Turn >= t.EndTurn {
		return 0
	}
	return t.EndTurn - t.Turn
}
