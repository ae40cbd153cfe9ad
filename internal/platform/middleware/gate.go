package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/httputil"
	"d1gate/pkg/requestcontext"
)

// PermissionChecker answers database permission questions. Implemented by
// the auth service.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID domain.UserID, databaseID string, required domain.Permission) (bool, error)
}

// DatabaseAccessCheck names the database permission a route requires. The
// database ID comes either from a fixed value or from a chi route parameter.
type DatabaseAccessCheck struct {
	DatabaseID     string
	FromRouteParam string
	Permission     domain.Permission
}

// GateOptions configures the per-route authorization gate.
type GateOptions struct {
	RequireAuth           bool
	RequireAdmin          bool
	RequireDatabaseAccess *DatabaseAccessCheck
}

// Gate evaluates the configured checks against the principal bound by
// SessionAuth, in order: authentication, admin role, database permission.
// Browser-style requests get redirects; requests preferring JSON get the
// error envelope.
func Gate(checker PermissionChecker, logger *slog.Logger, opts GateOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := GetPrincipal(ctx)

			if opts.RequireAuth && principal == nil {
				reject(w, r, dErrors.New(dErrors.CodeUnauthorized, "authentication required"), "/login")
				return
			}

			if opts.RequireAdmin && (principal == nil || principal.Role != domain.RoleAdmin) {
				reject(w, r, dErrors.New(dErrors.CodeForbidden, "admin privileges required"), "/")
				return
			}

			if check := opts.RequireDatabaseAccess; check != nil && principal != nil {
				databaseID := check.DatabaseID
				if check.FromRouteParam != "" {
					databaseID = chi.URLParam(r, check.FromRouteParam)
				}
				ok, err := checker.HasPermission(ctx, principal.ID, databaseID, check.Permission)
				if err != nil {
					logger.ErrorContext(ctx, "permission check failed",
						"error", err,
						"database_id", databaseID,
						"request_id", requestcontext.RequestID(ctx),
					)
					httputil.WriteError(w, err)
					return
				}
				if !ok {
					reject(w, r, dErrors.Newf(dErrors.CodeForbidden, "insufficient permissions for database: %s", databaseID), "/")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// reject answers with JSON when the caller prefers it, otherwise redirects
// the browser.
func reject(w http.ResponseWriter, r *http.Request, err error, redirectTo string) {
	if wantsJSON(r) {
		httputil.WriteError(w, err)
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
