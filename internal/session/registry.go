package session

import (
	"sort"
	"sync"
)

// Registry maps port ids to live sessions. A session inserts itself once at
// registration and removes itself once on close; Remove only deletes the
// entry if it still points at the caller.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert adds s under its port id. A previous session for the same port id
// is closed with ReasonReplaced and returned.
func (r *Registry) Insert(s *Session) *Session {
	r.mu.Lock()
	old := r.sessions[s.portID]
	r.sessions[s.portID] = s
	r.mu.Unlock()

	if old != nil && old != s {
		old.Close(ReasonReplaced)
		return old
	}
	return nil
}

// Remove deletes the entry for portID if it is s
func (r *Registry) Remove(portID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[portID]; ok && cur == s {
		delete(r.sessions, portID)
		return true
	}
	return false
}

// Get returns the live session for portID
func (r *Registry) Get(portID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[portID]
	return s, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns the live sessions ordered by port id
func (r *Registry) List() []*Session {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].portID < list[j].portID })
	return list
}

// CloseAll closes every live session with reason
func (r *Registry) CloseAll(reason CloseReason) {
	for _, s := range r.List() {
		s.Close(reason)
	}
}
