package game

import "fmt"

// Status is the lifecycle of a game.
type Status int

const (
	StatusLobby Status = iota
	StatusRunning
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusLobby:
		return "LOBBY"
	case StatusRunning:
		return "RUNNING"
	case StatusEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("STATUS_%d", int(s))
	}
}

// EndCondition records why a game ended.
type EndCondition int

const (
	EndConditionInProgress EndCondition = iota
	EndConditionOutOfCards
	EndConditionVictory
	EndConditionStrikeout
	EndConditionConceded
	EndConditionTimeout
	EndConditionIdleTimeout
)

func (e EndCondition) String() string {
	switch e {
	case EndConditionInProgress:
		return "inProgress"
	case EndConditionOutOfCards:
		return "outOfCards"
	case EndConditionVictory:
		return "victory"
	case EndConditionStrikeout:
		return "strikeout"
	case EndConditionConceded:
		return "terminated"
	case EndConditionTimeout:
		return "timeout"
	case EndConditionIdleTimeout:
		return "idleTimeout"
	default:
		return fmt.Sprintf("endCondition_%d", int(e))
	}
}

// StackDirection is the order cards are played onto a suit's stack.
type StackDirection int

const (
	StackDirectionUp StackDirection = iota
	StackDirectionDown
)

func (d StackDirection) String() string {
	if d == StackDirectionDown {
		return "down"
	}
	return "up"
}

// ClueType distinguishes color clues from rank clues.
type ClueType int

const (
	ClueTypeColor ClueType = iota
	ClueTypeRank
)

func (c ClueType) String() string {
	if c == ClueTypeRank {
		return "rank"
	}
	return "color"
}

// Clue is a hint given to another player. Value is an index into the
// variant's clue colors for color clues and the rank itself for rank clues.
type Clue struct {
	Type  ClueType `json:"type"`
	Value int      `json:"value"`
}

// PaceRisk classifies how close the team is to losing the ability to reach max score.
type PaceRisk int

const (
	PaceRiskNull PaceRisk = iota
	PaceRiskZero
	PaceRiskHigh
	PaceRiskMedium
	PaceRiskLow
)

func (p PaceRisk) String() string {
	switch p {
	case PaceRiskZero:
		return "Zero"
	case PaceRiskHigh:
		return "HighRisk"
	case PaceRiskMedium:
		return "MediumRisk"
	case PaceRiskLow:
		return "LowRisk"
	default:
		return "Null"
	}
}

// CardLocation is where a card currently sits.
type CardLocation int

const (
	LocationDeck CardLocation = iota
	LocationHand
	LocationStack
	LocationDiscard
)

func (l CardLocation) String() string {
	switch l {
	case LocationHand:
		return "hand"
	case LocationStack:
		return "playStack"
	case LocationDiscard:
		return "discard"
	default:
		return "deck"
	}
}
