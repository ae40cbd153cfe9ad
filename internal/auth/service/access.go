package service

import (
	"context"
	"errors"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/sentinel"
	"d1gate/pkg/requestcontext"
)

// HasPermission reports whether userID may act on databaseID at the required
// level. Admins pass unconditionally; everyone else needs a grant whose
// permission covers the requirement.
func (s *Service) HasPermission(ctx context.Context, userID domain.UserID, databaseID string, required domain.Permission) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}
	if user.Role == domain.RoleAdmin {
		return true, nil
	}

	grant, err := s.access.Find(ctx, userID, databaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup grant")
	}
	return grant.Permission.Covers(required), nil
}

// Grant gives userID the stated permission on databaseID. A repeated grant
// overwrites the previous one.
func (s *Service) Grant(ctx context.Context, userID domain.UserID, databaseID string, permission domain.Permission, grantedBy domain.UserID) (*models.AccessGrant, error) {
	if databaseID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "database id is required")
	}
	if !permission.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "permission must be read, write, or admin")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}

	grant, err := s.access.Upsert(ctx, &models.AccessGrant{
		ID:         domain.NewGrantID(),
		UserID:     userID,
		DatabaseID: databaseID,
		Permission: permission,
		GrantedAt:  requestcontext.Now(ctx),
		GrantedBy:  grantedBy,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store grant")
	}

	s.logger.InfoContext(ctx, "access granted",
		"user_id", userID.String(),
		"database_id", databaseID,
		"permission", permission.String(),
		"granted_by", grantedBy.String(),
	)
	return grant, nil
}

// Revoke removes the grant for (userID, databaseID). Reports NotFound when
// no grant existed.
func (s *Service) Revoke(ctx context.Context, userID domain.UserID, databaseID string) error {
	err := s.access.Delete(ctx, userID, databaseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "no grant for that user and database")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke grant")
	}
	s.logger.InfoContext(ctx, "access revoked", "user_id", userID.String(), "database_id", databaseID)
	return nil
}

// ListGrantsForUser returns every grant held by userID.
func (s *Service) ListGrantsForUser(ctx context.Context, userID domain.UserID) ([]*models.AccessGrant, error) {
	grants, err := s.access.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// ListGrantsForDatabase returns every grant on databaseID.
func (s *Service) ListGrantsForDatabase(ctx context.Context, databaseID string) ([]*models.AccessGrant, error) {
	grants, err := s.access.ListByDatabase(ctx, databaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// AccessibleDatabases filters the given database IDs down to the ones the
// user may see: all of them for admins, granted ones for everyone else.
func (s *Service) AccessibleDatabases(ctx context.Context, userID domain.UserID, all []string) ([]string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}
	if user.Role == domain.RoleAdmin {
		return all, nil
	}

	grants, err := s.access.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[g.DatabaseID] = true
	}

	var accessible []string
	for _, id := range all {
		if granted[id] {
			accessible = append(accessible, id)
		}
	}
	return accessible, nil
}
