package game

import (
	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
)

// Strike records a misplay.
type Strike struct {
	Order int `json:"order"`
	Turn  int `json:"turn"`
}

// GameState is the full, authoritative state of one game. It is owned by a
// single Engine; callers outside the engine only ever see copies.
type GameState struct {
	Players []string `json:"players"`
	Options Options  `json:"options"`

	Deck      []CardState `json:"deck"` // indexed by order
	DeckIndex int         `json:"deckIndex"`
	Hands     [][]int     `json:"hands"` // newest card first
	Discard   []int       `json:"discard"`
	Stacks    [][]int     `json:"stacks"`

	Clues   int             `json:"clues"`
	Strikes []Strike        `json:"strikes"`
	Turns   rules.TurnOrder `json:"turns"`

	Score        int          `json:"score"`
	MaxScore     int          `json:"maxScore"`
	Pace         int          `json:"pace"`
	PaceRisk     PaceRisk     `json:"paceRisk"`
	Status       Status       `json:"status"`
	EndCondition EndCondition `json:"endCondition"`

	Log   []LogEntry   `json:"log"`
	Moves []MoveRecord `json:"moves"`
}

func (g *GameState) variant() Variant {
	v, _ := LookupVariant(g.Options.VariantName)
	return v
}

// CardsLeft returns the number of cards still in the deck.
func (g *GameState) CardsLeft() int {
	return len(g.Deck) - g.DeckIndex
}

// StackTops returns the rank on top of each suit's stack, 0 for empty stacks.
func (g *GameState) StackTops() []int {
	tops := make([]int, len(g.Stacks))
	for i, stack := range g.Stacks {
		if len(stack) > 0 {
			tops[i] = g.Deck[stack[len(stack)-1]].Rank
		}
	}
	return tops
}

// SlotOf returns the position of a card in a player's hand, or -1.
func (g *GameState) SlotOf(player, order int) int {
	if player < 0 || player >= len(g.Hands) {
		return -1
	}
	for slot, o := range g.Hands[player] {
		if o == order {
			return slot
		}
	}
	return -1
}

// HandOf returns the player's hand as the viewer sees it. The holder only
// sees what their clues have pinned down. A viewer of -1 sees every card.
func (g *GameState) HandOf(player, viewer int) []CardState {
	if player < 0 || player >= len(g.Hands) {
		return nil
	}
	hand := make([]CardState, 0, len(g.Hands[player]))
	for _, order := range g.Hands[player] {
		card := g.Deck[order]
		if viewer == player {
			if !card.SuitKnown() {
				card.SuitIndex = Hidden
			}
			if !card.RankKnown() {
				card.Rank = Hidden
			}
		}
		hand = append(hand, card)
	}
	return hand
}

// legalityView exposes the state to the rules package.
type legalityView struct {
	g *GameState
}

var _ rules.GameStateAccessor = legalityView{}

func (v legalityView) Running() bool           { return v.g.Status == StatusRunning }
func (v legalityView) Ended() bool             { return v.g.Status == StatusEnded }
func (v legalityView) NumPlayers() int         { return len(v.g.Players) }
func (v legalityView) CurrentPlayer() int      { return v.g.Turns.Current }
func (v legalityView) ClueTokens() int         { return v.g.Clues }
func (v legalityView) MaxClueTokens() int      { return v.g.Options.MaxClues }
func (v legalityView) EmptyCluesAllowed() bool { return v.g.Options.EmptyClues }

func (v legalityView) HandContains(player, order int) bool {
	return v.g.SlotOf(player, order) >= 0
}

func (v legalityView) ClueValid(clue rules.ClueInfo) bool {
	switch ClueType(clue.Type) {
	case ClueTypeColor:
		return clue.Value >= 0 && clue.Value < len(v.g.variant().ClueColors)
	case ClueTypeRank:
		return clue.Value >= 1 && clue.Value <= v.g.Options.MaxRank
	default:
		return false
	}
}

func (v legalityView) CardsTouched(target int, clue rules.ClueInfo) int {
	variant := v.g.variant()
	c := Clue{Type: ClueType(clue.Type), Value: clue.Value}
	touched := 0
	for _, order := range v.g.Hands[target] {
		card := v.g.Deck[order]
		if variant.ClueTouches(c, card.SuitIndex, card.Rank) {
			touched++
		}
	}
	return touched
}
