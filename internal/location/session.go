package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Session resolves its location at most once.
type Session struct {
	ID        string
	CreatedAt time.Time

	once     sync.Once
	mu       sync.RWMutex
	res      Resolution
	resolved bool
}

// Resolve runs the resolver on the first call only; later calls return the
// stored result and never touch p.
func (s *Session) Resolve(ctx context.Context, r *Resolver, p Positioner) Resolution {
	s.once.Do(func() {
		res := r.Resolve(ctx, p)
		s.mu.Lock()
		s.res, s.resolved = res, true
		s.mu.Unlock()
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.res
}

// Sessions is an in-memory session table.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessions creates an empty table.
func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open returns the session for id, creating it (with a fresh id when id is
// empty) if needed.
func (s *Sessions) Open(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return sess
		}
	} else {
		id = uuid.NewString()
	}
	sess := &Session{ID: id, CreatedAt: s.now()}
	s.sessions[id] = sess
	return sess
}

// Get returns an existing session.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Expire drops sessions older than maxAge and returns how many were removed.
func (s *Sessions) Expire(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	n := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Resolution returns the stored result and whether the session has resolved.
func (s *Session) Resolution() (Resolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.res, s.resolved
}
