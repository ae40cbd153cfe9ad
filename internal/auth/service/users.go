package service

import (
	"context"
	"errors"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/sentinel"
	"d1gate/pkg/requestcontext"
)

// Register validates the requested identity and creates the user. Validation
// failures name the violated rule; identity collisions come back as
// conflicts.
func (s *Service) Register(ctx context.Context, username, email, password string, role domain.Role) (*models.User, error) {
	if err := validateCredentials(username, email, password); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "role must be admin or user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user := &models.User{
		ID:           domain.NewUserID(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, s.conflictError(ctx, username)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	if s.metrics != nil {
		s.metrics.IncRegistration()
	}
	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"role", user.Role.String(),
	)
	return user, nil
}

// conflictError names which identity field collided.
func (s *Service) conflictError(ctx context.Context, username string) error {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return dErrors.New(dErrors.CodeConflict, "username already exists")
	}
	return dErrors.New(dErrors.CodeConflict, "email already exists")
}

func validateCredentials(username, email, password string) error {
	if !govalidator.StringLength(username, "3", "50") {
		return dErrors.New(dErrors.CodeValidation, "username must be at least 3 characters long")
	}
	if !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeValidation, "valid email is required")
	}
	if !govalidator.StringLength(password, "6", "72") {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters long")
	}
	return nil
}

// GetUser returns the full user record (stores strip nothing; the HTTP layer
// sanitizes).
func (s *Service) GetUser(ctx context.Context, id domain.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}
	return user, nil
}

// ListUsers returns every user record.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// UpdateUser merges the provided fields into the stored record and refreshes
// updated_at. Changed fields are validated with the registration rules.
func (s *Service) UpdateUser(ctx context.Context, id domain.UserID, update models.UserUpdate) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lookup user")
	}

	if update.Username != nil {
		if !govalidator.StringLength(*update.Username, "3", "50") {
			return nil, dErrors.New(dErrors.CodeValidation, "username must be at least 3 characters long")
		}
		user.Username = *update.Username
	}
	if update.Email != nil {
		if !govalidator.IsEmail(*update.Email) {
			return nil, dErrors.New(dErrors.CodeValidation, "valid email is required")
		}
		user.Email = *update.Email
	}
	if update.Password != nil {
		if !govalidator.StringLength(*update.Password, "6", "72") {
			return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters long")
		}
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(*update.Password), bcryptCost)
		if hashErr != nil {
			return nil, dErrors.Wrap(hashErr, dErrors.CodeInternal, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}
	if update.Role != nil {
		if !update.Role.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "role must be admin or user")
		}
		user.Role = *update.Role
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	user.UpdatedAt = requestcontext.Now(ctx)

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, s.conflictError(ctx, user.Username)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
		}
	}
	return user, nil
}

// DeleteUser removes the user and cascades to their sessions and grants. The
// bootstrap admin is protected and survives every delete attempt.
func (s *Service) DeleteUser(ctx context.Context, id domain.UserID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrProtected):
			return dErrors.New(dErrors.CodeForbidden, "default admin cannot be deleted")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
		}
	}

	// Cascade after the record is gone: any session or grant left behind is
	// unreachable (validation treats a missing owner as no session).
	if err := s.sessions.DeleteByUser(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to cascade session deletion", "error", err, "user_id", id.String())
	}
	if err := s.access.DeleteByUser(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to cascade grant deletion", "error", err, "user_id", id.String())
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String())
	return nil
}

// Bootstrap ensures the default admin account exists and is protected from
// deletion. Called once at startup; the credentials come from configuration,
// never from source.
func (s *Service) Bootstrap(ctx context.Context, username, email, password string) (*models.User, error) {
	if existing, err := s.users.FindByUsername(ctx, username); err == nil {
		s.users.Protect(ctx, existing.ID)
		return existing, nil
	}

	user, err := s.Register(ctx, username, email, password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.users.Protect(ctx, user.ID)
	s.logger.Info("bootstrap admin created", "user_id", user.ID.String(), "username", username)
	return user, nil
}
