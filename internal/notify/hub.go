// Package notify delivers server commands to logged in users.
package notify

import (
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// Hub sends commands through the connections held in the user registry.
// Users who are not logged in are skipped.
type Hub struct {
	registry *user.Registry
	logger   *zap.Logger
}

// NewHub creates a hub reading from registry.
func NewHub(registry *user.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{registry: registry, logger: logger}
}

// SendAll sends a command to every connected user.
func (h *Hub) SendAll(command string, payload any) {
	for _, s := range h.registry.All() {
		h.deliver(s, command, payload)
	}
}

// Send sends a command to one user.
func (h *Hub) Send(userID int, command string, payload any) {
	if s, ok := h.registry.Get(userID); ok {
		h.deliver(s, command, payload)
	}
}

// SendTo sends a command to each of the given users.
func (h *Hub) SendTo(userIDs []int, command string, payload any) {
	for _, id := range userIDs {
		h.Send(id, command, payload)
	}
}

func (h *Hub) deliver(s user.Session, command string, payload any) {
	if err := s.Conn.Send(command, payload); err != nil {
		h.logger.Debug("failed to deliver command",
			zap.Int("user_id", s.UserID),
			zap.String("command", command),
			zap.Error(err),
		)
	}
}
