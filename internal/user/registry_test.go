package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySetGetDelete(t *testing.T) {
	registry, writer := NewRegistry()
	assert.Same(t, registry, writer.Registry())

	writer.Set(Session{Identity: Identity{UserID: 2, Username: "bob"}, SessionID: 7})
	writer.Set(Session{Identity: Identity{UserID: 1, Username: "alice"}, SessionID: 8})

	s, ok := registry.Get(2)
	require.True(t, ok)
	assert.Equal(t, uint64(7), s.SessionID)
	assert.Equal(t, 2, registry.Count())

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].UserID)
	assert.Equal(t, 2, all[1].UserID)

	writer.Delete(2)
	_, ok = registry.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryReturnsCopies(t *testing.T) {
	registry, writer := NewRegistry()
	writer.Set(Session{Identity: Identity{UserID: 1, Username: "alice"}})

	s, _ := registry.Get(1)
	s.Status = StatusPlaying

	fresh, _ := registry.Get(1)
	assert.Equal(t, StatusLobby, fresh.Status)
}

func TestRegistryUpdate(t *testing.T) {
	registry, writer := NewRegistry()
	writer.Set(Session{Identity: Identity{UserID: 1, Username: "alice"}})

	updated, ok := writer.Update(1, func(s *Session) {
		s.Status = StatusPreGame
		s.TableID = 12
		s.UserID = 99
	})
	require.True(t, ok)
	assert.Equal(t, StatusPreGame, updated.Status)
	assert.Equal(t, 1, updated.UserID)

	s, _ := registry.Get(1)
	assert.Equal(t, 12, s.TableID)

	_, ok = writer.Update(5, func(*Session) {})
	assert.False(t, ok)
}

func TestSessionInfo(t *testing.T) {
	s := Session{
		Identity: Identity{UserID: 3, Username: "carol", Hyphenated: true},
		Status:   StatusSpectating,
		TableID:  4,
		Inactive: true,
	}
	assert.Equal(t, Info{UserID: 3, Name: "carol", Status: StatusSpectating, TableID: 4, Hyphenated: true, Inactive: true}, s.Info())
	assert.Equal(t, "Spectating", StatusSpectating.String())
	assert.Equal(t, "Pre-Game", StatusPreGame.String())
}
