// Package service implements the auth service: login, registration, session
// validation, logout, and permission checks. It owns no state of its own;
// the stores are injected so tests and main wire the same code paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"d1gate/internal/auth/models"
	"d1gate/internal/platform/metrics"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/sentinel"
	"d1gate/pkg/requestcontext"
)

// bcryptCost matches the cost the stored hashes were minted with.
const bcryptCost = 10

// DefaultSweepProbability is the chance an authenticated request triggers a
// background sweep of expired sessions.
const DefaultSweepProbability = 0.01

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id domain.UserID) error
	Protect(ctx context.Context, id domain.UserID)
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id domain.SessionID, now time.Time) (*models.Session, error)
	FindByToken(ctx context.Context, token string, now time.Time) (*models.Session, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]*models.Session, error)
	Delete(ctx context.Context, id domain.SessionID) error
	DeleteByUser(ctx context.Context, userID domain.UserID) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type AccessStore interface {
	Upsert(ctx context.Context, grant *models.AccessGrant) (*models.AccessGrant, error)
	Find(ctx context.Context, userID domain.UserID, databaseID string) (*models.AccessGrant, error)
	Delete(ctx context.Context, userID domain.UserID, databaseID string) error
	DeleteByUser(ctx context.Context, userID domain.UserID) error
	ListByUser(ctx context.Context, userID domain.UserID) ([]*models.AccessGrant, error)
	ListByDatabase(ctx context.Context, databaseID string) ([]*models.AccessGrant, error)
}

// Service is the single entry point the HTTP layer talks to.
type Service struct {
	users    UserStore
	sessions SessionStore
	access   AccessStore
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// sweepProbability is the per-call chance MaybeSweep actually sweeps.
	sweepProbability float64
}

func New(users UserStore, sessions SessionStore, access AccessStore, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		users:            users,
		sessions:         sessions,
		access:           access,
		logger:           logger,
		metrics:          m,
		sweepProbability: DefaultSweepProbability,
	}
}

// Login authenticates by username or email plus password and mints a session.
// Unknown identity, disabled account, and wrong password all surface as the
// same unauthorized error so responses cannot be used to enumerate accounts;
// the distinction is logged for operators.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password, userAgent, ipAddress string) (*models.SessionData, string, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

	user, err := s.users.FindByUsername(ctx, usernameOrEmail)
	if errors.Is(err, sentinel.ErrNotFound) {
		user, err = s.users.FindByEmail(ctx, usernameOrEmail)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.loginFailure(ctx, "unknown_identity", usernameOrEmail)
			return nil, "", invalid
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}

	if !user.IsActive {
		s.loginFailure(ctx, "account_disabled", user.Username)
		return nil, "", invalid
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.loginFailure(ctx, "password_mismatch", user.Username)
		return nil, "", invalid
	}

	now := requestcontext.Now(ctx)
	session := models.NewSession(user.ID, userAgent, ipAddress, now)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	if s.metrics != nil {
		s.metrics.IncLogin()
	}
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)

	return &models.SessionData{
		User:      user.Sanitize(),
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, session.Token, nil
}

func (s *Service) loginFailure(ctx context.Context, reason, identity string) {
	if s.metrics != nil {
		s.metrics.IncLoginFailure()
	}
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"identity", identity,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// ValidateSession resolves a bearer token into session data. An absent,
// expired, or orphaned session yields (nil, nil): no principal, no error. A
// session whose owner is missing or disabled is deleted as a side effect.
func (s *Service) ValidateSession(ctx context.Context, token string) (*models.SessionData, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessions.FindByToken(ctx, token, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed")
	}
	return s.resolveSession(ctx, session)
}

// ValidateSessionByID is the cookie-path twin of ValidateSession: the session
// cookie carries the session ID, not the bearer token.
func (s *Service) ValidateSessionByID(ctx context.Context, sessionID domain.SessionID) (*models.SessionData, error) {
	if sessionID.IsNil() {
		return nil, nil
	}
	session, err := s.sessions.FindByID(ctx, sessionID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session lookup failed")
	}
	return s.resolveSession(ctx, session)
}

func (s *Service) resolveSession(ctx context.Context, session *models.Session) (*models.SessionData, error) {
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
		}
		// Owner gone or disabled: the session is dead weight, drop it now.
		if delErr := s.sessions.Delete(ctx, session.ID); delErr != nil && !errors.Is(delErr, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to delete orphaned session",
				"error", delErr,
				"session_id", session.ID.String(),
			)
		}
		return nil, nil
	}

	return &models.SessionData{
		User:      user.Sanitize(),
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout deletes a single session. Reports NotFound if there was nothing to
// delete; callers that want idempotent logout ignore that code.
func (s *Service) Logout(ctx context.Context, sessionID domain.SessionID) error {
	err := s.sessions.Delete(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	s.logger.InfoContext(ctx, "logout", "session_id", sessionID.String())
	return nil
}

// LogoutAll deletes every session belonging to userID.
func (s *Service) LogoutAll(ctx context.Context, userID domain.UserID) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete sessions")
	}
	s.logger.InfoContext(ctx, "logout all", "user_id", userID.String())
	return nil
}

// ListSessions returns the live sessions for userID with a human-readable
// device summary parsed from the stored user agent.
func (s *Service) ListSessions(ctx context.Context, userID domain.UserID, currentSessionID domain.SessionID) ([]models.SessionSummary, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}

	now := requestcontext.Now(ctx)
	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Expired(now) {
			continue
		}
		summaries = append(summaries, models.SessionSummary{
			SessionID: sess.ID,
			Device:    deviceSummary(sess.UserAgent),
			IPAddress: sess.IPAddress,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			IsCurrent: sess.ID == currentSessionID,
		})
	}
	return summaries, nil
}

// deviceSummary condenses a raw User-Agent header into "Browser on OS".
func deviceSummary(rawUA string) string {
	if rawUA == "" {
		return "unknown device"
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return fmt.Sprintf("%s on %s", name, os)
	case name != "":
		return name
	case os != "":
		return os
	default:
		return "unknown device"
	}
}

// CleanupExpiredSessions sweeps expired sessions out of the store and
// reports how many were removed.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	removed, err := s.sessions.Sweep(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "session sweep failed")
	}
	if removed > 0 {
		if s.metrics != nil {
			s.metrics.AddSessionsSwept(removed)
		}
		s.logger.InfoContext(ctx, "swept expired sessions", "removed", removed)
	}
	return removed, nil
}

// MaybeSweep fires CleanupExpiredSessions in the background on a small
// fraction of calls. It never blocks and never propagates failures to the
// request that happened to trigger it.
func (s *Service) MaybeSweep(ctx context.Context) {
	if rand.Float64() >= s.sweepProbability {
		return
	}
	// Detach from the request so its cancellation cannot abort the sweep.
	sweepCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("session sweep panicked", "panic", r)
			}
		}()
		if _, err := s.CleanupExpiredSessions(sweepCtx); err != nil {
			s.logger.Error("session sweep failed", "error", err)
		}
	}()
}

// SetSweepProbability overrides the sweep sampling rate. Tests use 0 or 1.
func (s *Service) SetSweepProbability(p float64) {
	s.sweepProbability = p
}
