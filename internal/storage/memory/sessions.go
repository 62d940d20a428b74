package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/exchangebot/internal/conversation"
)

type session struct {
	state     conversation.State
	expiresAt time.Time
}

// Sessions is a conversation.Store with per-entry expiry.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[int64]session
	clock    Clock
}

// NewSessions returns an empty store. A nil clock uses time.Now.
func NewSessions(clock Clock) *Sessions {
	return &Sessions{sessions: make(map[int64]session), clock: clock}
}

// Get returns the live state of userID. Expired entries are dropped.
func (s *Sessions) Get(_ context.Context, userID int64) (conversation.State, bool, error) {
	now := s.clock.now()
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return conversation.State{}, false, nil
	}
	if !now.Before(sess.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.sessions[userID]; ok && cur.expiresAt.Equal(sess.expiresAt) {
			delete(s.sessions, userID)
		}
		s.mu.Unlock()
		return conversation.State{}, false, nil
	}
	return cloneState(sess.state), true, nil
}

// Put stores st for ttl from now.
func (s *Sessions) Put(_ context.Context, userID int64, st conversation.State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session{state: cloneState(st), expiresAt: s.clock.now().Add(ttl)}
	return nil
}

// Clear removes the state of userID.
func (s *Sessions) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func cloneState(st conversation.State) conversation.State {
	if st.Items != nil {
		st.Items = append(st.Items[:0:0], st.Items...)
	}
	return st
}
