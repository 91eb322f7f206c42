package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// SessionStore keeps dashboard sessions server-side. Get returns
// ErrSessionNotFound for unknown or expired ids.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(now) {
		s.mu.Lock()
		if cur, ok := s.sessions[id]; ok && cur.Expired(now) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemorySessionStore) Ping(context.Context) error { return nil }
