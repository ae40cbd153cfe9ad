// Package handler exposes the database registry under /api/databases.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"d1gate/internal/database"
	"d1gate/internal/platform/middleware"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/httputil"
	"d1gate/pkg/platform/sentinel"
)

// AccessService filters databases down to what a principal may see.
// Implemented by the auth service.
type AccessService interface {
	middleware.PermissionChecker
	AccessibleDatabases(ctx context.Context, userID domain.UserID, all []string) ([]string, error)
}

// Handler manages database connection configs.
type Handler struct {
	logger   *slog.Logger
	registry *database.Registry
	access   AccessService
}

func New(registry *database.Registry, access AccessService, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry, access: access}
}

// Register registers the /api/databases routes. Listing and mutating configs
// is admin-only; the accessible listing is open to any authenticated user.
func (h *Handler) Register(r chi.Router) {
	authed := middleware.Gate(h.access, h.logger, middleware.GateOptions{RequireAuth: true})
	adminOnly := middleware.Gate(h.access, h.logger, middleware.GateOptions{RequireAuth: true, RequireAdmin: true})

	r.Route("/api/databases", func(r chi.Router) {
		r.With(authed).Get("/accessible", h.handleAccessible)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", h.handleList)
			r.Post("/", h.handleCreate)
			r.Put("/{id}", h.handleUpdate)
			r.Delete("/{id}", h.handleDelete)
			r.Post("/{id}/test", h.handleTest)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"databases": h.registry.List(r.Context()),
	})
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AccountID   string `json:"account_id"`
	DatabaseID  string `json:"database_id"`
	APIToken    string `json:"api_token"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cfg, err := h.registry.Create(r.Context(), database.Config{
		Name:        req.Name,
		Description: req.Description,
		AccountID:   req.AccountID,
		DatabaseID:  req.DatabaseID,
		APIToken:    req.APIToken,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"database": cfg,
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var update database.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	cfg, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		httputil.WriteError(w, notFoundOr(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"database": cfg,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, notFoundOr(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTest reports connectivity as data, not as an error status: an
// unreachable database is a successful test with a negative result.
func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Test(r.Context(), id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "database not found"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleAccessible(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.GetPrincipal(ctx)

	ids, err := h.access.AccessibleDatabases(ctx, principal.ID, h.registry.IDs(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	accessible := make([]*database.Config, 0, len(ids))
	for _, id := range ids {
		cfg, cfgErr := h.registry.Get(ctx, id)
		if cfgErr != nil {
			continue
		}
		accessible = append(accessible, cfg)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"databases": accessible})
}

// notFoundOr translates the registry's missing-record sentinel; everything
// else passes through for the boundary to classify.
func notFoundOr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "database not found")
	}
	return err
}
