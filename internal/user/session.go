package user

import (
	"fmt"
	"time"
)

// Status is what a user is currently doing.
type Status int

const (
	StatusLobby Status = iota
	StatusPreGame
	StatusPlaying
	StatusSpectating
	StatusReplay
	StatusSharedReplay
)

func (s Status) String() string {
	switch s {
	case StatusLobby:
		return "Lobby"
	case StatusPreGame:
		return "Pre-Game"
	case StatusPlaying:
		return "Playing"
	case StatusSpectating:
		return "Spectating"
	case StatusReplay:
		return "Replay"
	case StatusSharedReplay:
		return "Shared Replay"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Handlers are the callbacks a connection invokes for inbound traffic.
type Handlers struct {
	OnMessage func(data []byte)
	OnClose   func()
}

// Conn is a live client connection.
type Conn interface {
	// Send delivers one command to the client.
	Send(command string, payload any) error
	// Terminate sends a final error notice and closes the connection.
	// The close handler still fires.
	Terminate(notice string)
	// Attach installs the inbound handlers. Messages are not read before Attach.
	Attach(h Handlers)
	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// Identity is who a connection authenticated as.
type Identity struct {
	UserID     int
	Username   string
	Muted      bool
	Hyphenated bool
}

// NoTable is the TableID of a user who is not at a table.
const NoTable = 0

// Session is a logged in user. The registry hands out copies.
type Session struct {
	Identity
	SessionID   uint64
	ConnID      string
	Conn        Conn
	Status      Status
	TableID     int
	Inactive    bool
	ConnectedAt time.Time
}

// Info is the presence record broadcast to every connected user.
type Info struct {
	UserID     int    `json:"userID"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
	TableID    int    `json:"tableID"`
	Hyphenated bool   `json:"hyphenated"`
	Inactive   bool   `json:"inactive"`
}

// Info returns the session's presence record.
func (s Session) Info() Info {
	return Info{
		UserID:     s.UserID,
		Name:       s.Username,
		Status:     s.Status,
		TableID:    s.TableID,
		Hyphenated: s.Hyphenated,
		Inactive:   s.Inactive,
	}
}
