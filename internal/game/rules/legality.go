package rules

import "fmt"

// MoveKind identifies the type of move a player attempts.
type MoveKind int

const (
	MoveClue MoveKind = iota
	MovePlay
	MoveDiscard
	MoveConcede
	MoveTimeLimit
	MoveIdleLimit
)

var moveKindNames = map[MoveKind]string{
	MoveClue:      "clue",
	MovePlay:      "play",
	MoveDiscard:   "discard",
	MoveConcede:   "concede",
	MoveTimeLimit: "timeLimit",
	MoveIdleLimit: "idleLimit",
}

func (k MoveKind) String() string {
	if name, ok := moveKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("move_%d", int(k))
}

// TakesTurn reports whether a successful move of this kind ends the mover's turn.
func (k MoveKind) TakesTurn() bool {
	return k == MoveClue || k == MovePlay || k == MoveDiscard
}

// Reason is a machine readable rejection code.
type Reason string

const (
	ReasonNotRunning         Reason = "not_running"
	ReasonGameOver           Reason = "game_over"
	ReasonUnknownPlayer      Reason = "unknown_player"
	ReasonNotYourTurn        Reason = "not_your_turn"
	ReasonNoClueTokens       Reason = "no_clue_tokens"
	ReasonClueSelf           Reason = "clue_self"
	ReasonInvalidTarget      Reason = "invalid_target"
	ReasonInvalidClue        Reason = "invalid_clue"
	ReasonClueTouchesNothing Reason = "clue_touches_nothing"
	ReasonCardNotInHand      Reason = "card_not_in_hand"
	ReasonMaxClueTokens      Reason = "max_clue_tokens"
	ReasonUnknownMove        Reason = "unknown_move"
)

// ClueInfo describes a clue for legality checks.
type ClueInfo struct {
	Type  int
	Value int
}

// MoveInfo describes a move for legality checks.
type MoveInfo struct {
	Kind   MoveKind
	Player int
	Target int // Clue receiver
	Order  int // Card played or discarded
	Clue   ClueInfo
}

// GameStateAccessor provides access to game state needed for legality checks.
type GameStateAccessor interface {
	// Running reports whether moves are currently accepted
	Running() bool
	// Ended reports whether the game has finished
	Ended() bool
	// NumPlayers returns the number of seats
	NumPlayers() int
	// CurrentPlayer returns the seat whose turn it is
	CurrentPlayer() int
	// ClueTokens returns the clue tokens available
	ClueTokens() int
	// MaxClueTokens returns the configured clue token cap
	MaxClueTokens() int
	// HandContains checks whether a card is in the given player's hand
	HandContains(player, order int) bool
	// ClueValid checks whether a clue names a color or rank that exists in the variant
	ClueValid(clue ClueInfo) bool
	// CardsTouched counts cards in the target's hand the clue would touch
	CardsTouched(target int, clue ClueInfo) int
	// EmptyCluesAllowed reports whether clues may touch no cards
	EmptyCluesAllowed() bool
}

// LegalityResult represents the result of a legality check.
type LegalityResult struct {
	Legal   bool
	Reason  Reason
	Message string
	Details map[string]string
}

// LegalityChecker validates moves before they are applied.
type LegalityChecker struct {
	gameState GameStateAccessor
}

// NewLegalityChecker creates a new legality checker.
func NewLegalityChecker(gameState GameStateAccessor) *LegalityChecker {
	return &LegalityChecker{gameState: gameState}
}

func illegal(reason Reason, message string, details map[string]string) LegalityResult {
	return LegalityResult{Legal: false, Reason: reason, Message: message, Details: details}
}

// Check validates a move against the current state. Game state checks come
// first, then turn ownership, then the move specific rules.
func (lc *LegalityChecker) Check(move MoveInfo) LegalityResult {
	gs := lc.gameState

	if gs.Ended() {
		return illegal(ReasonGameOver, "The game is already over.", nil)
	}
	if !gs.Running() {
		return illegal(ReasonNotRunning, "The game has not started yet.", nil)
	}

	switch move.Kind {
	case MoveTimeLimit, MoveIdleLimit:
		// Issued by the server on behalf of the table.
		return LegalityResult{Legal: true}
	}

	if move.Player < 0 || move.Player >= gs.NumPlayers() {
		return illegal(ReasonUnknownPlayer, "You are not playing in this game.", map[string]string{
			"player": fmt.Sprintf("%d", move.Player),
		})
	}

	if move.Kind == MoveConcede {
		return LegalityResult{Legal: true}
	}

	if move.Player != gs.CurrentPlayer() {
		return illegal(ReasonNotYourTurn, "It is not your turn.", map[string]string{
			"player":  fmt.Sprintf("%d", move.Player),
			"current": fmt.Sprintf("%d", gs.CurrentPlayer()),
		})
	}

	switch move.Kind {
	case MoveClue:
		return lc.checkClue(move)
	case MovePlay:
		return lc.checkInHand(move)
	case MoveDiscard:
		if gs.ClueTokens() >= gs.MaxClueTokens() {
			return illegal(ReasonMaxClueTokens, "You cannot discard while the team has the maximum number of clues.", nil)
		}
		return lc.checkInHand(move)
	}

	return illegal(ReasonUnknownMove, "That is not a valid action.", map[string]string{
		"kind": move.Kind.String(),
	})
}

func (lc *LegalityChecker) checkClue(move MoveInfo) LegalityResult {
	gs := lc.gameState
	if gs.ClueTokens() <= 0 {
		return illegal(ReasonNoClueTokens, "There are no clues available.", nil)
	}
	if move.Target == move.Player {
		return illegal(ReasonClueSelf, "You cannot give a clue to yourself.", nil)
	}
	if move.Target < 0 || move.Target >= gs.NumPlayers() {
		return illegal(ReasonInvalidTarget, "That is not a valid clue target.", map[string]string{
			"target": fmt.Sprintf("%d", move.Target),
		})
	}
	if !gs.ClueValid(move.Clue) {
		return illegal(ReasonInvalidClue, "That clue does not exist in this variant.", map[string]string{
			"type":  fmt.Sprintf("%d", move.Clue.Type),
			"value": fmt.Sprintf("%d", move.Clue.Value),
		})
	}
	if !gs.EmptyCluesAllowed() && gs.CardsTouched(move.Target, move.Clue) == 0 {
		return illegal(ReasonClueTouchesNothing, "That clue does not touch any cards.", nil)
	}
	return LegalityResult{Legal: true}
}

func (lc *LegalityChecker) checkInHand(move MoveInfo) LegalityResult {
	if !lc.gameState.HandContains(move.Player, move.Order) {
		return illegal(ReasonCardNotInHand, "That card is not in your hand.", map[string]string{
			"order": fmt.Sprintf("%d", move.Order),
		})
	}
	return LegalityResult{Legal: true}
}
