// Package access implements the access-grant store: per-user, per-database
// permission records with upsert semantics.
package access

import (
	"context"
	"sync"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	"d1gate/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

type grantKey struct {
	userID     domain.UserID
	databaseID string
}

// InMemoryAccessStore keeps grants keyed by (user, database) so a repeated
// grant overwrites rather than duplicates.
type InMemoryAccessStore struct {
	mu     sync.RWMutex
	grants map[grantKey]*models.AccessGrant
}

func New() *InMemoryAccessStore {
	return &InMemoryAccessStore{grants: make(map[grantKey]*models.AccessGrant)}
}

// Upsert stores the grant for its (user, database) pair, overwriting any
// existing grant's permission, timestamp, and grantor while keeping the
// original grant ID.
func (s *InMemoryAccessStore) Upsert(_ context.Context, grant *models.AccessGrant) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey{userID: grant.UserID, databaseID: grant.DatabaseID}
	if existing, ok := s.grants[key]; ok {
		existing.Permission = grant.Permission
		existing.GrantedAt = grant.GrantedAt
		existing.GrantedBy = grant.GrantedBy
		cp := *existing
		return &cp, nil
	}

	cp := *grant
	s.grants[key] = &cp
	out := cp
	return &out, nil
}

// Find returns the grant for (userID, databaseID), if any.
func (s *InMemoryAccessStore) Find(_ context.Context, userID domain.UserID, databaseID string) (*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey{userID: userID, databaseID: databaseID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// Delete removes the grant for (userID, databaseID). Returns ErrNotFound if
// none existed so revoke can report the miss.
func (s *InMemoryAccessStore) Delete(_ context.Context, userID domain.UserID, databaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{userID: userID, databaseID: databaseID}
	if _, ok := s.grants[key]; !ok {
		return ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

// DeleteByUser removes every grant owned by userID. Used by the user-delete
// cascade.
func (s *InMemoryAccessStore) DeleteByUser(_ context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.grants {
		if key.userID == userID {
			delete(s.grants, key)
		}
	}
	return nil
}

// ListByUser returns every grant held by userID.
func (s *InMemoryAccessStore) ListByUser(_ context.Context, userID domain.UserID) ([]*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccessGrant
	for key, g := range s.grants {
		if key.userID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListByDatabase returns every grant on databaseID.
func (s *InMemoryAccessStore) ListByDatabase(_ context.Context, databaseID string) ([]*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccessGrant
	for key, g := range s.grants {
		if key.databaseID == databaseID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}
