package game

import (
	"errors"

	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
)

// Rejection is returned when a move is not legal in the current state.
// The state is left unchanged.
type Rejection struct {
	Reason  rules.Reason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
