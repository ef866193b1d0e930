package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }

	_, err := s.CreatedAt(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.EnsureUser(ctx, user.Identity{UserID: 1, Username: "Alice"}))
	require.NoError(t, s.EnsureUser(ctx, user.Identity{UserID: 2, Username: "Bob"}))
	require.NoError(t, s.EnsureUser(ctx, user.Identity{UserID: 3, Username: "Cathy"}))

	s.now = func() time.Time { return created.Add(time.Hour) }
	require.NoError(t, s.EnsureUser(ctx, user.Identity{UserID: 1, Username: "Alicia"}))
	at, err := s.CreatedAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, created, at)

	settings, err := s.Settings(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(settings))
	s.SetSettings(1, json.RawMessage(`{"soundMove":false}`))
	settings, err = s.Settings(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"soundMove":false}`, string(settings))

	s.AddFriend(1, 3)
	s.AddFriend(1, 2)
	s.AddFriend(1, 2)
	s.AddFriend(2, 1)
	friends, err := s.Friends(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Cathy"}, friends)
	friends, err = s.Friends(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alicia"}, friends)
}

func TestMemoryStoreGames(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := table.GameRecord{GameID: "g1", TableID: 1, PlayerIDs: []int{1, 2}, Score: 17}
	require.NoError(t, s.RecordGame(ctx, rec))
	require.NoError(t, s.RecordGame(ctx, table.GameRecord{GameID: "g2", PlayerIDs: []int{2, 3}}))
	rec.PlayerIDs[0] = 9

	n, err := s.GameCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.GameCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.GameCount(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, n)

	games := s.Games()
	require.Len(t, games, 2)
	assert.Equal(t, []int{1, 2}, games[0].PlayerIDs)
}
