package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
	"github.com/hanabi-live/hanabi-server-go/internal/user/usertest"
)

func TestHubDelivery(t *testing.T) {
	registry, writer := user.NewRegistry()
	alice := usertest.NewConn("a")
	bob := usertest.NewConn("b")
	writer.Set(user.Session{Identity: user.Identity{UserID: 1, Username: "Alice"}, Conn: alice})
	writer.Set(user.Session{Identity: user.Identity{UserID: 2, Username: "Bob"}, Conn: bob})

	hub := NewHub(registry, zaptest.NewLogger(t))
	hub.SendAll("user", user.Info{UserID: 3})
	hub.Send(2, "gameAction", "private")
	hub.Send(99, "gameAction", "nobody")
	hub.SendTo([]int{1, 99}, "notes", "x")

	assert.Equal(t, []string{"user", "notes"}, alice.Commands())
	assert.Equal(t, []string{"user", "gameAction"}, bob.Commands())

	bob.Close()
	hub.SendAll("userLeft", nil)
	assert.Equal(t, []string{"user", "notes", "userLeft"}, alice.Commands())
	assert.Equal(t, []string{"user", "gameAction"}, bob.Commands())
}
