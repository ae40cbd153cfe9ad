// Package handler exposes the auth REST surface under /api/auth.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"d1gate/internal/auth/models"
	"d1gate/internal/platform/middleware"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/httputil"
	"d1gate/pkg/requestcontext"
)

// sessionCookieMaxAge mirrors the session TTL, in seconds.
const sessionCookieMaxAge = int(models.SessionTTL / time.Second)

const timeFormat = time.RFC3339

// AuthService is the slice of the auth service this handler consumes.
type AuthService interface {
	middleware.PermissionChecker

	Login(ctx context.Context, usernameOrEmail, password, userAgent, ipAddress string) (*models.SessionData, string, error)
	Register(ctx context.Context, username, email, password string, role domain.Role) (*models.User, error)
	Logout(ctx context.Context, sessionID domain.SessionID) error
	LogoutAll(ctx context.Context, userID domain.UserID) error
	ListSessions(ctx context.Context, userID domain.UserID, currentSessionID domain.SessionID) ([]models.SessionSummary, error)

	GetUser(ctx context.Context, id domain.UserID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, id domain.UserID, update models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id domain.UserID) error

	Grant(ctx context.Context, userID domain.UserID, databaseID string, permission domain.Permission, grantedBy domain.UserID) (*models.AccessGrant, error)
	Revoke(ctx context.Context, userID domain.UserID, databaseID string) error
	ListGrantsForUser(ctx context.Context, userID domain.UserID) ([]*models.AccessGrant, error)
	ListGrantsForDatabase(ctx context.Context, databaseID string) ([]*models.AccessGrant, error)
}

// Handler handles authentication, user management, and access grants.
type Handler struct {
	logger *slog.Logger
	auth   AuthService
}

func New(auth AuthService, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, auth: auth}
}

// Register registers the /api/auth routes.
func (h *Handler) Register(r chi.Router) {
	authed := middleware.Gate(h.auth, h.logger, middleware.GateOptions{RequireAuth: true})
	adminOnly := middleware.Gate(h.auth, h.logger, middleware.GateOptions{RequireAuth: true, RequireAdmin: true})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/register", h.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/me", h.handleMe)
			r.Get("/sessions", h.handleListSessions)
			r.Post("/logout-all", h.handleLogoutAll)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Get("/users/{id}", h.handleGetUser)
			r.Put("/users/{id}", h.handleUpdateUser)
			r.Delete("/users/{id}", h.handleDeleteUser)

			r.Get("/access", h.handleListAccess)
			r.Post("/access", h.handleGrantAccess)
			r.Delete("/access", h.handleRevokeAccess)
		})
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool             `json:"success"`
	User      models.Principal `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "username and password are required"))
		return
	}

	sd, token, err := h.auth.Login(ctx, req.Username, req.Password,
		requestcontext.UserAgent(ctx), requestcontext.ClientIP(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	middleware.SetSessionCookie(w, sd.SessionID, sessionCookieMaxAge)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		User:      sd.User,
		Token:     token,
		ExpiresAt: sd.ExpiresAt.Format(timeFormat),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Logout is idempotent: a missing or already-dead session still clears
	// the cookie and reports success.
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sessionID, parseErr := domain.ParseSessionID(cookie.Value); parseErr == nil {
			if logoutErr := h.auth.Logout(ctx, sessionID); logoutErr != nil && !dErrors.HasCode(logoutErr, dErrors.CodeNotFound) {
				h.logger.ErrorContext(ctx, "logout failed", "error", logoutErr)
				httputil.WriteError(w, logoutErr)
				return
			}
		}
	}

	middleware.ClearSessionCookie(w)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.GetPrincipal(ctx)

	if err := h.auth.LogoutAll(ctx, principal.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	middleware.ClearSessionCookie(w)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Only an authenticated admin may mint another admin.
	if role == domain.RoleAdmin {
		principal := middleware.GetPrincipal(ctx)
		if principal == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required to create admin users"))
			return
		}
		if principal.Role != domain.RoleAdmin {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin privileges required to create admin users"))
			return
		}
	}

	user, err := h.auth.Register(ctx, req.Username, req.Email, req.Password, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sd := middleware.GetSession(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user":       sd.User,
		"session_id": sd.SessionID,
		"expires_at": sd.ExpiresAt.Format(timeFormat),
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sd := middleware.GetSession(ctx)

	sessions, err := h.auth.ListSessions(ctx, sd.User.ID, sd.SessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
