package queue

import (
	"context"
	"sort"
	"sync"
)

// sessionRegistry maps session IDs running on this pod to the cancel
// function of their context.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]context.CancelFunc
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]context.CancelFunc)}
}

func (r *sessionRegistry) register(sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = cancel
}

func (r *sessionRegistry) unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// cancel returns true if the session was found on this pod.
func (r *sessionRegistry) cancel(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cancel, ok := r.sessions[sessionID]; ok {
		cancel()
		return true
	}
	return false
}

func (r *sessionRegistry) cancelAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cancel := range r.sessions {
		cancel()
	}
	return len(r.sessions)
}

// ids returns the registered session IDs, sorted.
func (r *sessionRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
