package game

import (
	"sort"

	"github.com/samber/lo"
)

// DefaultVariant is the variant used when a table does not pick one.
const DefaultVariant = "No Variant"

// Suit is one of the colors in a variant.
type Suit struct {
	Name         string
	Abbreviation string
	ClueColor    string // Color clue that touches the suit; empty for rainbow suits
	Rainbow      bool   // Touched by every color clue
	Direction    StackDirection
}

// Variant is a named set of suits together with the colors that can be clued.
type Variant struct {
	Name       string
	Suits      []Suit
	ClueColors []string
}

var (
	suitRed      = Suit{Name: "Red", Abbreviation: "R", ClueColor: "Red"}
	suitYellow   = Suit{Name: "Yellow", Abbreviation: "Y", ClueColor: "Yellow"}
	suitGreen    = Suit{Name: "Green", Abbreviation: "G", ClueColor: "Green"}
	suitBlue     = Suit{Name: "Blue", Abbreviation: "B", ClueColor: "Blue"}
	suitPurple   = Suit{Name: "Purple", Abbreviation: "P", ClueColor: "Purple"}
	suitTeal     = Suit{Name: "Teal", Abbreviation: "T", ClueColor: "Teal"}
	suitRainbow  = Suit{Name: "Rainbow", Abbreviation: "M", Rainbow: true}
	suitReversed = Suit{Name: "Purple Reversed", Abbreviation: "P", ClueColor: "Purple", Direction: StackDirectionDown}
)

func newVariant(name string, suits ...Suit) Variant {
	colors := lo.Uniq(lo.FilterMap(suits, func(s Suit, _ int) (string, bool) {
		return s.ClueColor, !s.Rainbow && s.ClueColor != ""
	}))
	return Variant{Name: name, Suits: suits, ClueColors: colors}
}

var variants = lo.KeyBy([]Variant{
	newVariant(DefaultVariant, suitRed, suitYellow, suitGreen, suitBlue, suitPurple),
	newVariant("6 Suits", suitRed, suitYellow, suitGreen, suitBlue, suitPurple, suitTeal),
	newVariant("4 Suits", suitRed, suitYellow, suitGreen, suitBlue),
	newVariant("3 Suits", suitRed, suitYellow, suitGreen),
	newVariant("Rainbow (6 Suits)", suitRed, suitYellow, suitGreen, suitBlue, suitPurple, suitRainbow),
	newVariant("Reversed (5 Suits)", suitRed, suitYellow, suitGreen, suitBlue, suitReversed),
}, func(v Variant) string { return v.Name })

// LookupVariant finds a variant by name.
func LookupVariant(name string) (Variant, bool) {
	v, ok := variants[name]
	return v, ok
}

// VariantNames returns the supported variant names in sorted order.
func VariantNames() []string {
	names := lo.Keys(variants)
	sort.Strings(names)
	return names
}

// NumSuits returns the number of suits in the variant.
func (v Variant) NumSuits() int {
	return len(v.Suits)
}

// ColorTouches reports whether a color clue touches cards of the given suit.
func (v Variant) ColorTouches(colorIndex, suitIndex int) bool {
	if colorIndex < 0 || colorIndex >= len(v.ClueColors) || suitIndex < 0 || suitIndex >= len(v.Suits) {
		return false
	}
	suit := v.Suits[suitIndex]
	return suit.Rainbow || suit.ClueColor == v.ClueColors[colorIndex]
}

// ClueTouches reports whether a clue touches a card with the given identity.
func (v Variant) ClueTouches(clue Clue, suitIndex, rank int) bool {
	if clue.Type == ClueTypeRank {
		return clue.Value == rank
	}
	return v.ColorTouches(clue.Value, suitIndex)
}

// StartRank returns the first rank played on a suit's stack.
func (v Variant) StartRank(suitIndex, maxRank int) int {
	if v.Suits[suitIndex].Direction == StackDirectionDown {
		return maxRank
	}
	return 1
}

// FinalRank returns the rank that completes a suit's stack.
func (v Variant) FinalRank(suitIndex, maxRank int) int {
	if v.Suits[suitIndex].Direction == StackDirectionDown {
		return 1
	}
	return maxRank
}
