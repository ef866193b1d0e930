package game

// Pace returns how many more discards the team can afford while still
// reaching maxScore: score + cards left in the deck + players - maxScore.
func Pace(score, deckSize, numPlayers, maxScore int) int {
	return score + deckSize + numPlayers - maxScore
}

// RiskOf classifies a pace value for display. It never affects legality.
func RiskOf(pace, numPlayers int) PaceRisk {
	switch {
	case pace <= 0:
		return PaceRiskZero
	case pace-numPlayers+numPlayers/2 < 0:
		return PaceRiskHigh
	case pace-numPlayers < 0:
		return PaceRiskMedium
	default:
		return PaceRiskLow
	}
}

func (e *Engine) updatePace() {
	s := e.state
	if s.Status != StatusRunning || s.CardsLeft() == 0 {
		s.Pace = 0
		s.PaceRisk = PaceRiskNull
		return
	}
	s.Pace = Pace(s.Score, s.CardsLeft(), len(s.Players), s.MaxScore)
	s.PaceRisk = RiskOf(s.Pace, len(s.Players))
}

// updateMaxScore recomputes the best score still reachable given the cards
// that have been discarded.
func (e *Engine) updateMaxScore() {
	s := e.state
	maxRank := s.Options.MaxRank
	total := 0
	for suit := range e.variant.Suits {
		played := len(s.Stacks[suit])
		total += played
		rank, step := e.nextRank(suit)
		for i := played; i < maxRank; i++ {
			if !e.rankAlive(suit, rank) {
				break
			}
			total++
			rank += step
		}
	}
	s.MaxScore = total
}

// nextRank returns the rank the suit's stack needs next and the direction it moves.
func (e *Engine) nextRank(suit int) (rank, step int) {
	s := e.state
	step = 1
	if e.variant.Suits[suit].Direction == StackDirectionDown {
		step = -1
	}
	stack := s.Stacks[suit]
	if len(stack) == 0 {
		return e.variant.StartRank(suit, s.Options.MaxRank), step
	}
	return s.Deck[stack[len(stack)-1]].Rank + step, step
}

func (e *Engine) rankAlive(suit, rank int) bool {
	for _, card := range e.state.Deck {
		if card.SuitIndex == suit && card.Rank == rank && card.Location != LocationDiscard {
			return true
		}
	}
	return false
}
