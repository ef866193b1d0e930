package game

import (
	"hash/fnv"
	"math/rand/v2"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CardIdentity is the face of a card.
type CardIdentity struct {
	SuitIndex int `json:"suitIndex"`
	Rank      int `json:"rank"`
}

// CopiesOf returns how many copies of a rank exist in a suit: three of the
// rank that starts the stack, one of the rank that completes it and two of
// every rank in between.
func CopiesOf(variant Variant, suitIndex, rank, maxRank int) int {
	switch rank {
	case variant.StartRank(suitIndex, maxRank):
		return 3
	case variant.FinalRank(suitIndex, maxRank):
		return 1
	default:
		return 2
	}
}

// NewSeed returns a random seed suitable for NewDeck.
func NewSeed() string {
	seed, err := gonanoid.New(12)
	if err != nil {
		return "default"
	}
	return seed
}

// NewDeck builds and shuffles the deck for a variant. The same seed always
// produces the same deck.
func NewDeck(variant Variant, maxRank int, seed string) []CardIdentity {
	deck := make([]CardIdentity, 0, variant.NumSuits()*maxRank*2)
	for suitIndex := range variant.Suits {
		for rank := 1; rank <= maxRank; rank++ {
			for i := 0; i < CopiesOf(variant, suitIndex, rank, maxRank); i++ {
				deck = append(deck, CardIdentity{SuitIndex: suitIndex, Rank: rank})
			}
		}
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	rng := rand.New(rand.NewPCG(sum, sum>>32|sum<<32))
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}
