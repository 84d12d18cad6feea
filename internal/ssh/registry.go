package ssh

import "sync"

// sessionRegistry is the process-wide table of live PTY sessions and the
// only shared mutable state in the package. Callers insert, remove and look
// up; nobody iterates it or holds its lock across network calls.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ptySession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*ptySession)}
}

func (r *sessionRegistry) insert(id string, s *ptySession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

func (r *sessionRegistry) lookup(id string) (*ptySession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove takes the session out of the registry and reports whether it was
// still present, so close paths can tell first removal from repeats.
func (r *sessionRegistry) remove(id string) (*ptySession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}
