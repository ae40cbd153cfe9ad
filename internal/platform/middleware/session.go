package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"d1gate/internal/auth/models"
	"d1gate/pkg/domain"
	"d1gate/pkg/requestcontext"
)

// SessionCookieName is the cookie carrying the session ID. The cookie holds
// the ID, not the bearer token; API clients may present the token via the
// Authorization header instead.
const SessionCookieName = "session"

// SessionValidator resolves credentials into session data. Implemented by
// the auth service.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.SessionData, error)
	ValidateSessionByID(ctx context.Context, sessionID domain.SessionID) (*models.SessionData, error)
	MaybeSweep(ctx context.Context)
}

type sessionKey struct{}

// GetSession retrieves the bound session data, or nil for anonymous
// requests.
func GetSession(ctx context.Context) *models.SessionData {
	if sd, ok := ctx.Value(sessionKey{}).(*models.SessionData); ok {
		return sd
	}
	return nil
}

// GetPrincipal retrieves the authenticated principal, or nil.
func GetPrincipal(ctx context.Context) *models.Principal {
	if sd := GetSession(ctx); sd != nil {
		return &sd.User
	}
	return nil
}

// withSession injects session data for downstream handlers. Exposed inside
// the package for gate tests.
func withSession(ctx context.Context, sd *models.SessionData) context.Context {
	return context.WithValue(ctx, sessionKey{}, sd)
}

// WithTestSession injects session data directly; handler tests use it to
// fake an authenticated request without running SessionAuth.
func WithTestSession(ctx context.Context, sd *models.SessionData) context.Context {
	return withSession(ctx, sd)
}

// SessionAuth resolves the request's principal once per request: from the
// session cookie (session ID) or, failing that, a bearer token. An
// unresolvable credential leaves the request anonymous; route gates decide
// whether that matters. Each pass also gives the session sweep a chance to
// run.
func SessionAuth(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sd, err := resolveSession(ctx, validator, r)
			if err != nil {
				logger.ErrorContext(ctx, "session validation failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				// Treated as anonymous; also clear the dud cookie.
				ClearSessionCookie(w)
			} else if sd != nil {
				ctx = withSession(ctx, sd)
			}

			validator.MaybeSweep(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveSession(ctx context.Context, validator SessionValidator, r *http.Request) (*models.SessionData, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		sessionID, parseErr := domain.ParseSessionID(cookie.Value)
		if parseErr != nil {
			return nil, parseErr
		}
		return validator.ValidateSessionByID(ctx, sessionID)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return validator.ValidateSession(ctx, token)
	}

	return nil, nil
}

// SetSessionCookie writes the session cookie on login.
func SetSessionCookie(w http.ResponseWriter, sessionID domain.SessionID, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID.String(),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie; logout and invalid-cookie
// recovery use it.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
