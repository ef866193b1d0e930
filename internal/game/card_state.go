package game

// NoSegment marks a card event that has not happened.
const NoSegment = -1

// CardState is everything the server tracks about one physical card,
// including what its holder can deduce from the clues received.
type CardState struct {
	Order     int          `json:"order"`
	SuitIndex int          `json:"suitIndex"`
	Rank      int          `json:"rank"`
	Location  CardLocation `json:"location"`
	Holder    int          `json:"holder"`

	PossibleSuits      []bool `json:"possibleSuits"`
	PossibleRanks      []bool `json:"possibleRanks"` // index rank-1
	PositiveColorClues []int  `json:"positiveColorClues"`
	PositiveRankClues  []int  `json:"positiveRankClues"`

	Clued     bool `json:"clued"`
	Misplayed bool `json:"misplayed"`

	SegmentDrawn      int `json:"segmentDrawn"`
	SegmentFirstClued int `json:"segmentFirstClued"`
	SegmentPlayed     int `json:"segmentPlayed"`
	SegmentDiscarded  int `json:"segmentDiscarded"`
}

func newCardState(order int, id CardIdentity, numSuits, maxRank int) CardState {
	suits := make([]bool, numSuits)
	for i := range suits {
		suits[i] = true
	}
	ranks := make([]bool, maxRank)
	for i := range ranks {
		ranks[i] = true
	}
	return CardState{
		Order:             order,
		SuitIndex:         id.SuitIndex,
		Rank:              id.Rank,
		Location:          LocationDeck,
		Holder:            -1,
		PossibleSuits:     suits,
		PossibleRanks:     ranks,
		SegmentDrawn:      NoSegment,
		SegmentFirstClued: NoSegment,
		SegmentPlayed:     NoSegment,
		SegmentDiscarded:  NoSegment,
	}
}

// Identity returns the face of the card.
func (c CardState) Identity() CardIdentity {
	return CardIdentity{SuitIndex: c.SuitIndex, Rank: c.Rank}
}

// applyClue narrows the possibilities of a card in the clued hand. positive
// is true when the clue touched this card.
func (c *CardState) applyClue(variant Variant, clue Clue, positive bool) {
	switch clue.Type {
	case ClueTypeColor:
		for i := range c.PossibleSuits {
			if variant.ColorTouches(clue.Value, i) != positive {
				c.PossibleSuits[i] = false
			}
		}
		if positive {
			c.PositiveColorClues = appendUnique(c.PositiveColorClues, clue.Value)
		}
	case ClueTypeRank:
		for i := range c.PossibleRanks {
			if (i+1 == clue.Value) != positive {
				c.PossibleRanks[i] = false
			}
		}
		if positive {
			c.PositiveRankClues = appendUnique(c.PositiveRankClues, clue.Value)
		}
	}
}

// SuitKnown reports whether clues have narrowed the suit to a single option.
func (c CardState) SuitKnown() bool {
	return countTrue(c.PossibleSuits) == 1
}

// RankKnown reports whether clues have narrowed the rank to a single option.
func (c CardState) RankKnown() bool {
	return countTrue(c.PossibleRanks) == 1
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}

func appendUnique(values []int, v int) []int {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
