package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Manager keeps one Session per user id.
type Manager struct {
	eng      *Engine
	mu       sync.Mutex
	sessions map[string]*Session
	starts   singleflight.Group
}

func newManager(e *Engine) *Manager {
	return &Manager{eng: e, sessions: make(map[string]*Session)}
}

// Session returns the user's session, creating it on first use. An existing
// session picks up the newer credentials and tier.
func (m *Manager) Session(sc core.SessionContext, creds cloudsync.Credentials) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sc.UserID]; ok {
		s.refresh(sc.Tier, creds)
		return s
	}
	s := newSession(m.eng, sc, creds)
	m.sessions[sc.UserID] = s
	return s
}

// Lookup returns an existing session.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Start runs the user's initial load once. Concurrent callers share the
// same run; callers after it completed get nil immediately.
func (m *Manager) Start(ctx context.Context, userID string) error {
	s, ok := m.Lookup(userID)
	if !ok {
		return core.ErrSessionNotReady
	}
	if s.Ready() {
		return nil
	}
	_, err, _ := m.starts.Do(userID, func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		return nil, s.Start(ctx)
	})
	return err
}

// Remove forgets a session, e.g. on sign out.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
