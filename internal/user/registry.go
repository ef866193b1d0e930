package user

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps user IDs to their live session. Anyone may read it; only the
// holder of the matching Writer may change it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]Session
}

// Writer is the mutating half of a Registry.
type Writer struct {
	r *Registry
}

// NewRegistry returns an empty registry and its only writer.
func NewRegistry() (*Registry, *Writer) {
	r := &Registry{sessions: make(map[int]Session)}
	return r, &Writer{r: r}
}

// Get returns a copy of the user's session.
func (r *Registry) Get(userID int) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Count returns the number of logged in users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a copy of every session ordered by user ID.
func (r *Registry) All() []Session {
	r.mu.RLock()
	sessions := lo.Values(r.sessions)
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions
}

// Infos returns the presence record of every session ordered by user ID.
func (r *Registry) Infos() []Info {
	return lo.Map(r.All(), func(s Session, _ int) Info {
		return s.Info()
	})
}

// Registry returns the read side of the registry.
func (w *Writer) Registry() *Registry {
	return w.r
}

// Set installs or replaces the user's session.
func (w *Writer) Set(s Session) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	w.r.sessions[s.UserID] = s
}

// Delete removes the user's session.
func (w *Writer) Delete(userID int) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	delete(w.r.sessions, userID)
}

// Update modifies the user's session in place and returns the result.
// It reports false if the user is not logged in.
func (w *Writer) Update(userID int, fn func(*Session)) (Session, bool) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	s, ok := w.r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	fn(&s)
	s.UserID = userID
	w.r.sessions[userID] = s
	return s, true
}
