package game

import (
	"fmt"

	"dario.cat/mergo"
)

const (
	MinPlayers = 2
	MaxPlayers = 6
)

// Options configures a single game. Zero values fall back to DefaultOptions.
type Options struct {
	VariantName        string `json:"variantName" mapstructure:"variant"`
	MaxClues           int    `json:"maxClues" mapstructure:"max_clues"`
	MaxStrikes         int    `json:"maxStrikes" mapstructure:"max_strikes"`
	MaxRank            int    `json:"maxRank" mapstructure:"max_rank"`
	HandSize           int    `json:"handSize,omitempty" mapstructure:"hand_size"`
	ExtraTurns         int    `json:"extraTurns,omitempty" mapstructure:"extra_turns"`
	EmptyClues         bool   `json:"emptyClues" mapstructure:"empty_clues"`
	NoStackClueRefund  bool   `json:"noStackClueRefund" mapstructure:"no_stack_clue_refund"`
	Timed              bool   `json:"timed" mapstructure:"timed"`
	TimeBaseSeconds    int    `json:"timeBase" mapstructure:"time_base_seconds"`
	TimePerTurnSeconds int    `json:"timePerTurn" mapstructure:"time_per_turn_seconds"`
	Seed               string `json:"seed,omitempty" mapstructure:"seed"`
}

// DefaultOptions returns the standard rules.
func DefaultOptions() Options {
	return Options{
		VariantName:        DefaultVariant,
		MaxClues:           8,
		MaxStrikes:         3,
		MaxRank:            5,
		TimeBaseSeconds:    120,
		TimePerTurnSeconds: 20,
	}
}

// HandSizeFor returns the standard hand size for a player count.
func HandSizeFor(numPlayers int) int {
	switch {
	case numPlayers <= 3:
		return 5
	case numPlayers <= 5:
		return 4
	default:
		return 3
	}
}

// Resolve fills unset fields from DefaultOptions and the player count and
// validates the result.
func (o Options) Resolve(numPlayers int) (Options, error) {
	if numPlayers < MinPlayers || numPlayers > MaxPlayers {
		return o, fmt.Errorf("games need between %d and %d players, got %d", MinPlayers, MaxPlayers, numPlayers)
	}
	if err := mergo.Merge(&o, DefaultOptions()); err != nil {
		return o, fmt.Errorf("failed to apply default options: %w", err)
	}
	if o.HandSize == 0 {
		o.HandSize = HandSizeFor(numPlayers)
	}
	if o.ExtraTurns == 0 {
		o.ExtraTurns = numPlayers
	}
	if _, ok := LookupVariant(o.VariantName); !ok {
		return o, fmt.Errorf("unknown variant %q", o.VariantName)
	}
	if o.MaxClues < 1 || o.MaxStrikes < 1 {
		return o, fmt.Errorf("clue and strike limits must be positive")
	}
	if o.MaxRank < 2 {
		return o, fmt.Errorf("max rank must be at least 2, got %d", o.MaxRank)
	}
	return o, nil
}
