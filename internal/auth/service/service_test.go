package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"d1gate/internal/auth/models"
	"d1gate/internal/auth/store/access"
	"d1gate/internal/auth/store/session"
	"d1gate/internal/auth/store/user"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
	svc *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(
		user.New(),
		session.New(),
		access.New(),
		logger,
		nil,
	)
	s.svc.SetSweepProbability(0)
}

// at shifts the test clock by d.
func (s *ServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *ServiceSuite) register(username, email, password string, role domain.Role) *models.User {
	u, err := s.svc.Register(s.ctx, username, email, password, role)
	s.Require().NoError(err)
	return u
}

func (s *ServiceSuite) login(identity, password string) (*models.SessionData, string) {
	sd, token, err := s.svc.Login(s.ctx, identity, password, "Mozilla/5.0 (X11; Linux x86_64) Firefox/125.0", "10.0.0.1")
	s.Require().NoError(err)
	return sd, token
}

func (s *ServiceSuite) TestRegisterAndLogin() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	s.NotEmpty(u.PasswordHash)
	s.NotEqual("secret1", u.PasswordHash)
	s.True(u.IsActive)

	sd, token := s.login("alice", "secret1")
	s.Equal(u.ID, sd.User.ID)
	s.Equal("alice", sd.User.Username)
	s.NotEmpty(token)
	s.False(sd.SessionID.IsNil())
	s.Equal(s.now.Add(models.SessionTTL), sd.ExpiresAt)
}

func (s *ServiceSuite) TestLoginByEmail() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	sd, _ := s.login("alice@example.com", "secret1")
	s.Equal(u.ID, sd.User.ID)
}

func (s *ServiceSuite) TestLoginFailuresAreIndistinguishable() {
	s.register("alice", "alice@example.com", "secret1", domain.RoleUser)

	disabled := s.register("bob", "bob@example.com", "secret1", domain.RoleUser)
	inactive := false
	_, err := s.svc.UpdateUser(s.ctx, disabled.ID, models.UserUpdate{IsActive: &inactive})
	s.Require().NoError(err)

	cases := map[string]struct{ identity, password string }{
		"unknown user":     {"nobody", "secret1"},
		"wrong password":   {"alice", "wrong!!"},
		"disabled account": {"bob", "secret1"},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, _, err := s.svc.Login(s.ctx, tc.identity, tc.password, "", "")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
			s.Equal("invalid credentials", dErrors.MessageOf(err))
		})
	}
}

func (s *ServiceSuite) TestValidateSessionByTokenAndID() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	sd, token := s.login("alice", "secret1")

	byToken, err := s.svc.ValidateSession(s.ctx, token)
	s.Require().NoError(err)
	s.Require().NotNil(byToken)
	s.Equal(u.ID, byToken.User.ID)

	byID, err := s.svc.ValidateSessionByID(s.ctx, sd.SessionID)
	s.Require().NoError(err)
	s.Require().NotNil(byID)
	s.Equal(sd.SessionID, byID.SessionID)

	// The session ID is not a valid bearer token.
	none, err := s.svc.ValidateSession(s.ctx, sd.SessionID.String())
	s.Require().NoError(err)
	s.Nil(none)
}

func (s *ServiceSuite) TestValidateSessionExpiry() {
	s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	_, token := s.login("alice", "secret1")

	sd, err := s.svc.ValidateSession(s.at(models.SessionTTL-time.Second), token)
	s.Require().NoError(err)
	s.NotNil(sd)

	sd, err = s.svc.ValidateSession(s.at(models.SessionTTL), token)
	s.Require().NoError(err)
	s.Nil(sd)
}

func (s *ServiceSuite) TestValidateSessionDisabledOwner() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	sd, token := s.login("alice", "secret1")

	inactive := false
	_, err := s.svc.UpdateUser(s.ctx, u.ID, models.UserUpdate{IsActive: &inactive})
	s.Require().NoError(err)

	got, err := s.svc.ValidateSession(s.ctx, token)
	s.Require().NoError(err)
	s.Nil(got)

	// The dead session was dropped, so logout now reports not found.
	err = s.svc.Logout(s.ctx, sd.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestLogout() {
	s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	sd, token := s.login("alice", "secret1")

	s.Require().NoError(s.svc.Logout(s.ctx, sd.SessionID))

	got, err := s.svc.ValidateSession(s.ctx, token)
	s.Require().NoError(err)
	s.Nil(got)

	err = s.svc.Logout(s.ctx, sd.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestLogoutAll() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	_, t1 := s.login("alice", "secret1")
	_, t2 := s.login("alice", "secret1")

	s.Require().NoError(s.svc.LogoutAll(s.ctx, u.ID))

	for _, token := range []string{t1, t2} {
		got, err := s.svc.ValidateSession(s.ctx, token)
		s.Require().NoError(err)
		s.Nil(got)
	}
}

func (s *ServiceSuite) TestListSessions() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	first, _ := s.login("alice", "secret1")
	current, _ := s.login("alice", "secret1")

	summaries, err := s.svc.ListSessions(s.ctx, u.ID, current.SessionID)
	s.Require().NoError(err)
	s.Require().Len(summaries, 2)

	byID := map[domain.SessionID]models.SessionSummary{}
	for _, sum := range summaries {
		byID[sum.SessionID] = sum
	}
	s.True(byID[current.SessionID].IsCurrent)
	s.False(byID[first.SessionID].IsCurrent)
	s.Equal("10.0.0.1", byID[first.SessionID].IPAddress)
	s.Contains(byID[first.SessionID].Device, "Firefox")

	// Expired sessions disappear from the listing.
	later, err := s.svc.ListSessions(s.at(models.SessionTTL+time.Minute), u.ID, current.SessionID)
	s.Require().NoError(err)
	s.Empty(later)
}

func (s *ServiceSuite) TestRegisterValidation() {
	cases := map[string]struct {
		username, email, password string
		wantMessage               string
	}{
		"short username": {"ab", "a@b.com", "secret1", "username must be at least 3 characters long"},
		"bad email":      {"alice", "not-an-email", "secret1", "valid email is required"},
		"short password": {"alice", "a@b.com", "12345", "password must be at least 6 characters long"},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.svc.Register(s.ctx, tc.username, tc.email, tc.password, domain.RoleUser)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.Equal(tc.wantMessage, dErrors.MessageOf(err))
		})
	}
}

func (s *ServiceSuite) TestRegisterConflicts() {
	s.register("alice", "alice@example.com", "secret1", domain.RoleUser)

	_, err := s.svc.Register(s.ctx, "alice", "other@example.com", "secret1", domain.RoleUser)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("username already exists", dErrors.MessageOf(err))

	_, err = s.svc.Register(s.ctx, "alice2", "alice@example.com", "secret1", domain.RoleUser)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("email already exists", dErrors.MessageOf(err))
}

func (s *ServiceSuite) TestUpdateUserPasswordRotation() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)

	newPassword := "rotated1"
	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	updated, err := s.svc.UpdateUser(later, u.ID, models.UserUpdate{Password: &newPassword})
	s.Require().NoError(err)
	s.NotEqual(u.PasswordHash, updated.PasswordHash)
	s.True(updated.UpdatedAt.After(u.UpdatedAt))

	_, _, err = s.svc.Login(s.ctx, "alice", "secret1", "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	sd, _ := s.login("alice", "rotated1")
	s.Equal(u.ID, sd.User.ID)
}

func (s *ServiceSuite) TestUpdateUserNotFound() {
	_, err := s.svc.UpdateUser(s.ctx, domain.NewUserID(), models.UserUpdate{})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteUserCascades() {
	admin := s.register("root", "root@example.com", "secret1", domain.RoleAdmin)
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	_, token := s.login("alice", "secret1")
	_, err := s.svc.Grant(s.ctx, u.ID, "db-1", domain.PermissionWrite, admin.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteUser(s.ctx, u.ID))

	_, err = s.svc.GetUser(s.ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	sd, err := s.svc.ValidateSession(s.ctx, token)
	s.Require().NoError(err)
	s.Nil(sd)

	grants, err := s.svc.ListGrantsForUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(grants)
}

func (s *ServiceSuite) TestBootstrapAdminIsProtected() {
	admin, err := s.svc.Bootstrap(s.ctx, "admin", "admin@example.com", "secret1")
	s.Require().NoError(err)
	s.Equal(domain.RoleAdmin, admin.Role)

	err = s.svc.DeleteUser(s.ctx, admin.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal("default admin cannot be deleted", dErrors.MessageOf(err))

	// Bootstrap is idempotent across restarts.
	again, err := s.svc.Bootstrap(s.ctx, "admin", "admin@example.com", "different")
	s.Require().NoError(err)
	s.Equal(admin.ID, again.ID)
}

func (s *ServiceSuite) TestHasPermissionLattice() {
	admin := s.register("root", "root@example.com", "secret1", domain.RoleAdmin)
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	_, err := s.svc.Grant(s.ctx, u.ID, "db-1", domain.PermissionWrite, admin.ID)
	s.Require().NoError(err)

	cases := []struct {
		required domain.Permission
		want     bool
	}{
		{domain.PermissionRead, true},
		{domain.PermissionWrite, true},
		{domain.PermissionAdmin, false},
	}
	for _, tc := range cases {
		ok, err := s.svc.HasPermission(s.ctx, u.ID, "db-1", tc.required)
		s.Require().NoError(err)
		s.Equal(tc.want, ok, "required %s", tc.required)
	}

	// No grant on another database.
	ok, err := s.svc.HasPermission(s.ctx, u.ID, "db-2", domain.PermissionRead)
	s.Require().NoError(err)
	s.False(ok)

	// Admins bypass grants everywhere.
	ok, err = s.svc.HasPermission(s.ctx, admin.ID, "db-2", domain.PermissionAdmin)
	s.Require().NoError(err)
	s.True(ok)

	// A missing user simply has no permission.
	ok, err = s.svc.HasPermission(s.ctx, domain.NewUserID(), "db-1", domain.PermissionRead)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestGrantUpsertsAndRevokes() {
	admin := s.register("root", "root@example.com", "secret1", domain.RoleAdmin)
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)

	_, err := s.svc.Grant(s.ctx, u.ID, "db-1", domain.PermissionRead, admin.ID)
	s.Require().NoError(err)
	_, err = s.svc.Grant(s.ctx, u.ID, "db-1", domain.PermissionAdmin, admin.ID)
	s.Require().NoError(err)

	grants, err := s.svc.ListGrantsForUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(grants, 1)
	s.Equal(domain.PermissionAdmin, grants[0].Permission)

	s.Require().NoError(s.svc.Revoke(s.ctx, u.ID, "db-1"))
	err = s.svc.Revoke(s.ctx, u.ID, "db-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGrantValidation() {
	admin := s.register("root", "root@example.com", "secret1", domain.RoleAdmin)

	_, err := s.svc.Grant(s.ctx, admin.ID, "", domain.PermissionRead, admin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.svc.Grant(s.ctx, admin.ID, "db-1", domain.Permission("owner"), admin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.svc.Grant(s.ctx, domain.NewUserID(), "db-1", domain.PermissionRead, admin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAccessibleDatabases() {
	admin := s.register("root", "root@example.com", "secret1", domain.RoleAdmin)
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	all := []string{"db-1", "db-2", "db-3"}

	got, err := s.svc.AccessibleDatabases(s.ctx, admin.ID, all)
	s.Require().NoError(err)
	s.Equal(all, got)

	_, err = s.svc.Grant(s.ctx, u.ID, "db-2", domain.PermissionRead, admin.ID)
	s.Require().NoError(err)
	got, err = s.svc.AccessibleDatabases(s.ctx, u.ID, all)
	s.Require().NoError(err)
	s.Equal([]string{"db-2"}, got)
}

func (s *ServiceSuite) TestCleanupExpiredSessions() {
	u := s.register("alice", "alice@example.com", "secret1", domain.RoleUser)
	s.login("alice", "secret1")
	s.login("alice", "secret1")

	removed, err := s.svc.CleanupExpiredSessions(s.ctx)
	s.Require().NoError(err)
	s.Zero(removed)

	removed, err = s.svc.CleanupExpiredSessions(s.at(models.SessionTTL + time.Minute))
	s.Require().NoError(err)
	s.Equal(2, removed)

	sessions, err := s.svc.ListSessions(s.ctx, u.ID, domain.SessionID{})
	s.Require().NoError(err)
	s.Empty(sessions)
}

func TestMaybeSweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.New()
	svc := New(user.New(), sessions, access.New(), logger, nil)

	u, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", domain.RoleUser)
	require.NoError(t, err)
	sess := models.NewSession(u.ID, "", "", now.Add(-2*models.SessionTTL))
	require.NoError(t, sessions.Create(ctx, sess))

	t.Run("probability zero never sweeps", func(t *testing.T) {
		svc.SetSweepProbability(0)
		for i := 0; i < 50; i++ {
			svc.MaybeSweep(ctx)
		}
		_, err := sessions.FindByToken(ctx, sess.Token, now.Add(-2*models.SessionTTL))
		require.NoError(t, err)
	})

	t.Run("probability one sweeps in the background", func(t *testing.T) {
		svc.SetSweepProbability(1)
		svc.MaybeSweep(requestcontext.WithTime(context.Background(), now))
		require.Eventually(t, func() bool {
			_, err := sessions.FindByToken(ctx, sess.Token, now.Add(-2*models.SessionTTL))
			return err != nil
		}, time.Second, 10*time.Millisecond)
	})
}
