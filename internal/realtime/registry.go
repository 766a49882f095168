package realtime

import (
	"sync"

	"github.com/tbourn/go-dm-backend/internal/utils"
)

// Registry maps each user to at most one live session. The map is only
// reachable through its methods.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	// users serializes connect/drain against route/enqueue per user.
	users utils.KeyedMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register installs s as userID's session and returns the session it
// displaced, if any. The caller closes the displaced session.
func (r *Registry) Register(userID string, s *Session) (previous *Session) {
	r.mu.Lock()
	previous = r.sessions[userID]
	r.sessions[userID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	activeSessions.Set(float64(n))
	if previous != nil && previous != s {
		sessionsReplaced.Inc()
		return previous
	}
	return nil
}

// Unregister removes userID's entry only when it still points at s, so a
// late disconnect of a replaced session cannot evict its successor.
func (r *Registry) Unregister(userID string, s *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[userID]
	removed := ok && cur == s
	if removed {
		delete(r.sessions, userID)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	activeSessions.Set(float64(n))
	return removed
}

// Lookup returns userID's session.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Exclusive runs fn while holding userID's serialization lock.
func (r *Registry) Exclusive(userID string, fn func()) {
	r.users.With(userID, fn)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
