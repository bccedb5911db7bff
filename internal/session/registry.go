package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
)

// Registry tracks live sessions by id. Mutations take the exclusive lock,
// lookups the shared one.
type Registry struct {
	maxSessions int
	metrics     *metrics.Metrics
	newID       func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. maxSessions <= 0 means unlimited.
func NewRegistry(maxSessions int, m *metrics.Metrics) *Registry {
	return &Registry{
		maxSessions: maxSessions,
		metrics:     m,
		newID:       uuid.NewString,
		sessions:    make(map[string]*Session),
	}
}

// Register inserts s. A session without an id is assigned a fresh UUID; a
// preset id that is already present fails with ErrDuplicateKey.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.id != "" {
		if _, ok := r.sessions[s.id]; ok {
			return ErrDuplicateKey
		}
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.metrics.Inc(metrics.SessionsQuotaReached)
		return ErrTooManySessions
	}

	if s.id == "" {
		for attempt := 0; attempt < 3 && s.id == ""; attempt++ {
			id := r.newID()
			if _, ok := r.sessions[id]; !ok {
				s.id = id
			}
		}
		if s.id == "" {
			return errors.New("session: failed to allocate unique id")
		}
	}

	r.sessions[s.id] = s
	s.reg = r
	return nil
}

// Unregister removes id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every registered session.
// Sessions returns a snapshot of the registered sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	return live
}

func (r *Registry) CloseAll(reason string) {
	for _, s := range r.Sessions() {
		s.Close(reason)
	}
}
