package game

import (
	"fmt"
	"strings"
)

// LogKind is the kind of a game log entry.
type LogKind string

const (
	LogClue     LogKind = "clue"
	LogPlay     LogKind = "play"
	LogDiscard  LogKind = "discard"
	LogDraw     LogKind = "draw"
	LogStrike   LogKind = "strike"
	LogTurn     LogKind = "turn"
	LogStatus   LogKind = "status"
	LogGameOver LogKind = "gameOver"
)

// Hidden marks a card attribute a viewer is not allowed to see.
const Hidden = -1

// LogEntry is one line of the game history. Each successful move produces
// one or more entries.
type LogEntry struct {
	Kind         LogKind `json:"type"`
	Turn         int     `json:"turn"`
	Player       int     `json:"playerIndex"`
	Target       int     `json:"target"`
	Clue         *Clue   `json:"clue,omitempty"`
	List         []int   `json:"list,omitempty"`
	Order        int     `json:"order"`
	SuitIndex    int     `json:"suitIndex"`
	Rank         int     `json:"rank"`
	Failed       bool    `json:"failed,omitempty"`
	Clues        int     `json:"clues"`
	Score        int     `json:"score"`
	MaxScore     int     `json:"maxScore"`
	EndCondition string  `json:"endCondition,omitempty"`
	Text         string  `json:"text"`
}

// ScrubFor hides the identity of a card drawn into the viewer's own hand.
// viewer is a seat index; spectators pass -1 and see everything.
func (e LogEntry) ScrubFor(viewer int) LogEntry {
	if e.Kind == LogDraw && viewer >= 0 && e.Player == viewer {
		e.SuitIndex = Hidden
		e.Rank = Hidden
		e.Text = ""
	}
	return e
}

// ScrubEntries applies ScrubFor to a slice of entries.
func ScrubEntries(entries []LogEntry, viewer int) []LogEntry {
	out := make([]LogEntry, len(entries))
	for i, e := range entries {
		out[i] = e.ScrubFor(viewer)
	}
	return out
}

var numberWords = []string{"zero", "one", "two", "three", "four", "five", "six"}

func numberWord(n int) string {
	if n >= 0 && n < len(numberWords) {
		return numberWords[n]
	}
	return fmt.Sprintf("%d", n)
}

func (g *GameState) cardName(order int) string {
	card := g.Deck[order]
	return fmt.Sprintf("%s %d", g.variant().Suits[card.SuitIndex].Name, card.Rank)
}

func (g *GameState) clueText(player, target int, clue Clue, touched int) string {
	var what string
	if clue.Type == ClueTypeRank {
		what = fmt.Sprintf("%d", clue.Value)
	} else {
		what = strings.ToLower(g.variant().ClueColors[clue.Value])
	}
	if touched != 1 {
		what += "s"
	}
	return fmt.Sprintf("%s tells %s about %s %s", g.Players[player], g.Players[target], numberWord(touched), what)
}

func slotText(slot int) string {
	return fmt.Sprintf("slot #%d", slot+1)
}
