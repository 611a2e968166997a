// internal/server/sessions.go
package server

import (
	"context"
	"sync"
	"time"

	"mcp-nutrient-profile/internal/nutrition"
)

// SessionStore keeps each signed-in user's food list in memory. Nothing
// is persisted; sessions disappear on logout, expiry or restart, and
// the user signs in again.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*nutrition.Session
	idleTTL  time.Duration
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*nutrition.Session),
		idleTTL:  idleTTL,
	}
}

// Create registers a fresh session at login.
func (s *SessionStore) Create(id, username string) *nutrition.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := nutrition.NewSession(id, username)
	s.sessions[id] = sess
	return sess
}

// Get returns the live session for id. Sessions ended by logout, pruning
// or a restart are gone, and their tokens no longer authenticate.
func (s *SessionStore) Get(id, username string) (*nutrition.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Username != username {
		return nil, false
	}
	return sess, true
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions idle for longer than the store's TTL.
func (s *SessionStore) Prune(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive()) > s.idleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) runJanitor(ctx context.Context, every time.Duration, onPrune func(int)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Prune(now); n > 0 && onPrune != nil {
				onPrune(n)
			}
		}
	}
}
