package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry is the set of live sessions. It owns lookup by ID and by name.
// Mutations happen under the engine lock; the registry's own lock lets
// read-only snapshots run without it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	order    []uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Add registers s.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.id]; ok {
		return
	}
	r.sessions[s.id] = s
	r.order = append(r.order, s.id)
}

// Remove unregisters the session with id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the session with id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	if id == uuid.Nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions in connection order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// ByUsername finds the authenticated session holding name, ignoring case.
// Callers must hold the engine lock for the result to stay valid.
func (r *Registry) ByUsername(name string) (*Session, bool) {
	for _, s := range r.Snapshot() {
		if s.username != "" && strings.EqualFold(s.username, name) {
			return s, true
		}
	}
	return nil, false
}

// NameInUse reports whether a session other than self holds name as its
// username or as a pending login/registration name.
func (r *Registry) NameInUse(name string, self *Session) bool {
	for _, s := range r.Snapshot() {
		if s == self {
			continue
		}
		if strings.EqualFold(s.username, name) || strings.EqualFold(s.tempUsername, name) {
			return true
		}
	}
	return false
}

// Infos returns snapshots of every session, sorted by display name.
func (r *Registry) Infos() []SessionInfo {
	sessions := r.Snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(displayOf(out[i])) < strings.ToLower(displayOf(out[j]))
	})
	return out
}

func displayOf(i SessionInfo) string {
	if i.Username != "" {
		return i.Username
	}
	return i.Alias
}
