package table

import (
	"errors"
	"fmt"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
)

var (
	// ErrTableNotFound is returned for actions on a table that does not exist.
	ErrTableNotFound = errors.New("table not found")
	// ErrQueueClosed is returned once a table has stopped accepting actions.
	ErrQueueClosed = errors.New("table queue closed")
)

// Rejection reasons for table management actions.
const (
	ReasonTableFull        rules.Reason = "table_full"
	ReasonAlreadyJoined    rules.Reason = "already_joined"
	ReasonAlreadyStarted   rules.Reason = "already_started"
	ReasonNotAtTable       rules.Reason = "not_at_table"
	ReasonNotOwner         rules.Reason = "not_owner"
	ReasonNotEnoughPlayers rules.Reason = "not_enough_players"
	ReasonWrongPassword    rules.Reason = "wrong_password"
	ReasonInvalidSeat      rules.Reason = "invalid_seat"
	ReasonInvalidOptions   rules.Reason = "invalid_options"
	ReasonNotStarted       rules.Reason = "not_started"
	ReasonInvalidNote      rules.Reason = "invalid_note"
)

func reject(reason rules.Reason, format string, args ...any) error {
	return &game.Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
