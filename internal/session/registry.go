package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trackforge/trackforge/internal/track"
)

// Registry maps opaque session ids to live Sessions (spec §4.8). The
// registry lock guards only the map; it is never held while a Session
// method runs, the same separation the teacher draws between
// serviceLock and the per-database mutex in internal/database.Service.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	maxHistory int
}

// NewRegistry constructs an empty registry. maxHistory is passed through
// to every session it creates.
func NewRegistry(maxHistory int) *Registry {
	if maxHistory <= 0 {
		maxHistory = MaxHistory
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
	}
}

// Create wraps t in a new Session and returns its freshly minted id.
func (r *Registry) Create(t *track.Track) (string, *Session) {
	sess := NewWithHistory(t, r.maxHistory)
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return id, sess
}

// Get returns the session for id, or nil if none is registered.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Delete removes and returns the session for id, or nil if none existed.
func (r *Registry) Delete(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return sess
}
