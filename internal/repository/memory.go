package repository

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// MemoryStore keeps users and games in memory. It backs servers started
// without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int]*memoryUser
	games []table.GameRecord
	now   func() time.Time
}

type memoryUser struct {
	username  string
	createdAt time.Time
	settings  json.RawMessage
	friends   []int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int]*memoryUser), now: time.Now}
}

// EnsureUser registers the user on first sight.
func (s *MemoryStore) EnsureUser(_ context.Context, identity user.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[identity.UserID]; ok {
		u.username = identity.Username
		return nil
	}
	s.users[identity.UserID] = &memoryUser{
		username:  identity.Username,
		createdAt: s.now(),
		settings:  json.RawMessage("{}"),
	}
	return nil
}

// SetSettings replaces the user's settings.
func (s *MemoryStore) SetSettings(userID int, settings json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.settings = append(json.RawMessage(nil), settings...)
	}
}

// AddFriend records that userID befriended friendID.
func (s *MemoryStore) AddFriend(userID, friendID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok && !lo.Contains(u.friends, friendID) {
		u.friends = append(u.friends, friendID)
	}
}

// GameCount returns how many recorded games the user took part in.
func (s *MemoryStore) GameCount(_ context.Context, userID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.CountBy(s.games, func(g table.GameRecord) bool {
		return lo.Contains(g.PlayerIDs, userID)
	}), nil
}

// CreatedAt returns when the user was first seen.
func (s *MemoryStore) CreatedAt(_ context.Context, userID int) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return u.createdAt, nil
}

// Settings returns the user's settings.
func (s *MemoryStore) Settings(_ context.Context, userID int) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), u.settings...), nil
}

// Friends returns the usernames of the user's friends in name order.
func (s *MemoryStore) Friends(_ context.Context, userID int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	names := lo.FilterMap(u.friends, func(id int, _ int) (string, bool) {
		f, ok := s.users[id]
		if !ok {
			return "", false
		}
		return f.username, true
	})
	slices.Sort(names)
	return names, nil
}

// RecordGame stores a copy of rec.
func (s *MemoryStore) RecordGame(_ context.Context, rec table.GameRecord) error {
	var stored table.GameRecord
	if err := copier.CopyWithOption(&stored, &rec, copier.Option{DeepCopy: true}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games = append(s.games, stored)
	return nil
}

// Games returns every recorded game.
func (s *MemoryStore) Games() []table.GameRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]table.GameRecord(nil), s.games...)
}
