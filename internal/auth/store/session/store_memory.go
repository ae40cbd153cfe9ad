// Package session implements the session store. Sessions are keyed by ID
// with a secondary index on the bearer token.
package session

import (
	"context"
	"sync"
	"time"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	"d1gate/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

// InMemorySessionStore keeps sessions in process memory. Lookups treat an
// expired-but-present session as not found; removal of expired rows is the
// caller's job (lazy delete or Sweep), never a side effect of a read.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*models.Session
	byToken  map[string]domain.SessionID
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[domain.SessionID]*models.Session),
		byToken:  make(map[string]domain.SessionID),
	}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[cp.ID] = &cp
	s.byToken[cp.Token] = cp.ID
	return nil
}

// FindByID returns the session with the given ID if it has not expired as of
// now. Expired sessions read as not found.
func (s *InMemorySessionStore) FindByID(_ context.Context, id domain.SessionID, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// FindByToken returns the session bearing the given token if it has not
// expired as of now.
func (s *InMemorySessionStore) FindByToken(_ context.Context, token string, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	sess := s.sessions[id]
	if sess == nil || sess.Expired(now) {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// ListByUser returns every session (including expired ones) owned by userID.
func (s *InMemorySessionStore) ListByUser(_ context.Context, userID domain.UserID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete removes a session by ID. Returns ErrNotFound if nothing was there,
// so callers can distinguish a no-op logout.
func (s *InMemorySessionStore) Delete(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, sess.Token)
	delete(s.sessions, id)
	return nil
}

// DeleteByUser removes every session owned by userID.
func (s *InMemorySessionStore) DeleteByUser(_ context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.byToken, sess.Token)
			delete(s.sessions, id)
		}
	}
	return nil
}

// Sweep removes every session whose expiry has passed and reports how many
// were removed. Timing is best-effort; a session expiring mid-sweep may
// survive until the next pass.
func (s *InMemorySessionStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.byToken, sess.Token)
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
