// Package user implements the credential store: user records keyed by ID
// with secondary lookups by username and email.
package user

import (
	"context"
	"sync"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	"d1gate/pkg/platform/sentinel"
)

// ErrNotFound aliases the shared sentinel so callers can depend on this
// package alone.
var ErrNotFound = sentinel.ErrNotFound

// InMemoryUserStore keeps user records in process memory. Username and email
// uniqueness is enforced here, under the store lock, so concurrent creates
// cannot race past the check. Matching is case-sensitive and exact.
type InMemoryUserStore struct {
	mu         sync.RWMutex
	users      map[domain.UserID]*models.User
	byUsername map[string]domain.UserID
	byEmail    map[string]domain.UserID
	protected  map[domain.UserID]bool
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:      make(map[domain.UserID]*models.User),
		byUsername: make(map[string]domain.UserID),
		byEmail:    make(map[string]domain.UserID),
		protected:  make(map[domain.UserID]bool),
	}
}

// Create inserts a new user. Returns sentinel.ErrConflict if the username or
// email is already taken.
func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[user.Username]; taken {
		return sentinel.ErrConflict
	}
	if _, taken := s.byEmail[user.Email]; taken {
		return sentinel.ErrConflict
	}

	u := *user
	s.users[u.ID] = &u
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return s.find(id)
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.find(id)
}

// List returns a snapshot of every user record.
func (s *InMemoryUserStore) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		users = append(users, &cp)
	}
	return users, nil
}

// Update replaces the stored record, keeping the secondary indexes in step.
// Uniqueness of a changed username or email is re-checked under the lock.
func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return ErrNotFound
	}

	if user.Username != current.Username {
		if _, taken := s.byUsername[user.Username]; taken {
			return sentinel.ErrConflict
		}
	}
	if user.Email != current.Email {
		if _, taken := s.byEmail[user.Email]; taken {
			return sentinel.ErrConflict
		}
	}

	delete(s.byUsername, current.Username)
	delete(s.byEmail, current.Email)

	u := *user
	s.users[u.ID] = &u
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID
	return nil
}

// Delete removes a user record. Protected users (the bootstrap admin) return
// sentinel.ErrProtected and are left untouched.
func (s *InMemoryUserStore) Delete(_ context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if s.protected[id] {
		return sentinel.ErrProtected
	}

	delete(s.users, id)
	delete(s.byUsername, user.Username)
	delete(s.byEmail, user.Email)
	return nil
}

// Protect shields a user from deletion for the lifetime of the process.
func (s *InMemoryUserStore) Protect(_ context.Context, id domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected[id] = true
}

// find returns a copy so callers cannot mutate store state through the
// pointer. Callers must hold at least the read lock.
func (s *InMemoryUserStore) find(id domain.UserID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
