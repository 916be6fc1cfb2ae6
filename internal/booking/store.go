package booking

import (
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/backend-travel/internal/obs"
)

// ErrNotFound indicates the requested booking session could not be located.
var ErrNotFound = errors.New("booking session not found")

// Store holds live booking sessions in memory. Sessions are process-local by
// contract: they own debounce timers and in-flight request sequence state that
// cannot survive serialization, and they are discarded on close, reset or
// successful submission.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore constructs a store evicting sessions idle for longer than ttl.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Store{
		sessions: map[string]*Session{},
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Put registers a session.
func (s *Store) Put(session *Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.setGaugeLocked()
	s.mu.Unlock()
}

// Get returns the session for the id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// Delete removes and closes the session if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.setGaugeLocked()
	s.mu.Unlock()
	if ok {
		session.Close()
	}
}

// Close stops the janitor and drops every session.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	stale := make([]*Session, 0, len(s.sessions))
	for id, session := range s.sessions {
		stale = append(stale, session)
		delete(s.sessions, id)
	}
	s.setGaugeLocked()
	s.mu.Unlock()
	for _, session := range stale {
		session.Close()
	}
}

func (s *Store) janitor() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *Store) evictIdle() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	var stale []*Session
	for id, session := range s.sessions {
		if session.TouchedAt().Before(cutoff) {
			stale = append(stale, session)
			delete(s.sessions, id)
		}
	}
	s.setGaugeLocked()
	s.mu.Unlock()
	for _, session := range stale {
		session.Close()
	}
}

func (s *Store) setGaugeLocked() {
	if obs.BookingSessionsActive != nil {
		obs.BookingSessionsActive.Set(float64(len(s.sessions)))
	}
}
