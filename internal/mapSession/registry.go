package mapSession

import (
	"sort"
	"sync"
	"time"

	"github.com/japersik/weather-map/logger"
)

type Factory func(key string) *Session

// Registry owns the live sessions, one per surface connection or chat.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		factory:  factory,
	}
}

//GetOrCreate returns the session for key, creating it when missing. setup runs
//on a new session before any other caller can see it. It must not call back
//into the registry.
func (r *Registry) GetOrCreate(key string, setup ...func(*Session)) (session *Session, created bool) {
	r.mu.RLock()
	session, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return session, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok = r.sessions[key]; ok {
		return session, false
	}
	session = r.factory(key)
	for _, fn := range setup {
		fn(session)
	}
	r.sessions[key] = session
	logger.DebugF("session %s created", key)
	return session, true
}

func (r *Registry) Get(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[key]
	if !ok {
		return nil, ErrUnknownSession
	}
	return session, nil
}

func (r *Registry) Remove(key string) error {
	r.mu.Lock()
	session, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	session.Close()
	logger.DebugF("session %s removed", key)
	return nil
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

//RemoveIdle closes and removes the sessions untouched since cutoff, returning their keys.
func (r *Registry) RemoveIdle(cutoff time.Time) []string {
	r.mu.Lock()
	var idle []*Session
	for key, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(idle))
	for _, s := range idle {
		s.Close()
		keys = append(keys, s.Key())
	}
	sort.Strings(keys)
	return keys
}

//Close closes every session and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
