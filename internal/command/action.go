package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// ActionType is the wire code of a game action.
type ActionType int

const (
	ActionPlay ActionType = iota
	ActionDiscard
	ActionColorClue
	ActionRankClue
	ActionEndGame
)

type actionRequest struct {
	TableID int        `json:"tableID"`
	Type    ActionType `json:"type"`
	Target  int        `json:"target"`
	Value   int        `json:"value"`
}

// Move converts the request into an engine move. Target is a card order
// for plays and discards and a seat for clues.
func (r actionRequest) Move() (game.Move, error) {
	switch r.Type {
	case ActionPlay:
		return game.PlayMove{Order: r.Target}, nil
	case ActionDiscard:
		return game.DiscardMove{Order: r.Target}, nil
	case ActionColorClue:
		return game.ClueMove{Target: r.Target, Clue: game.Clue{Type: game.ClueTypeColor, Value: r.Value}}, nil
	case ActionRankClue:
		return game.ClueMove{Target: r.Target, Clue: game.Clue{Type: game.ClueTypeRank, Value: r.Value}}, nil
	case ActionEndGame:
		return game.ConcedeMove{}, nil
	default:
		return nil, &badRequest{msg: fmt.Sprintf("The action type %d is not valid.", r.Type)}
	}
}

func (d *Dispatcher) action(ctx context.Context, s user.Session, payload json.RawMessage) error {
	var req actionRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	move, err := req.Move()
	if err != nil {
		return err
	}
	id, err := tableID(s, req.TableID)
	if err != nil {
		return err
	}
	return d.tables.Submit(ctx, id, table.Move{UserID: s.UserID, Move: move})
}
