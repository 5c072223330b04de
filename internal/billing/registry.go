package billing

import (
	"sync"
	"time"
)

// Registry owns the live billing sessions of this process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Create(cfg SessionConfig) *Session {
	session := NewSession(cfg)
	r.mu.Lock()
	if previous, ok := r.sessions[cfg.ID]; ok {
		previous.Close()
	}
	r.sessions[cfg.ID] = session
	r.mu.Unlock()
	return session
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Discard stops the session's timers and forgets it.
func (r *Registry) Discard(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune discards sessions that finished, or that have not been touched
// since now-idleAfter and are not mid-submission. It returns the number
// of sessions removed.
func (r *Registry) Prune(now time.Time, idleAfter time.Duration) int {
	cutoff := now.Add(-idleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, session := range r.sessions {
		if session.State() != StateDone && !session.UpdatedAt().Before(cutoff) {
			continue
		}
		if _, err := session.CloseUnlessSubmitting(); err != nil {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
