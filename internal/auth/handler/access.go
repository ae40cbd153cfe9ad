package handler

import (
	"encoding/json"
	"net/http"

	"d1gate/internal/platform/middleware"
	"d1gate/pkg/domain"
	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/httputil"
)

// handleListAccess lists grants filtered by exactly one of user_id or
// database_id.
func (h *Handler) handleListAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userIDParam := r.URL.Query().Get("user_id")
	databaseID := r.URL.Query().Get("database_id")

	switch {
	case userIDParam != "":
		userID, err := domain.ParseUserID(userIDParam)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		grants, err := h.auth.ListGrantsForUser(ctx, userID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"grants": grants})

	case databaseID != "":
		grants, err := h.auth.ListGrantsForDatabase(ctx, databaseID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"grants": grants})

	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "user_id or database_id query parameter is required"))
	}
}

type grantRequest struct {
	UserID     string `json:"user_id"`
	DatabaseID string `json:"database_id"`
	Permission string `json:"permission"`
}

func (h *Handler) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	permission, err := domain.ParsePermission(req.Permission)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	principal := middleware.GetPrincipal(ctx)
	grant, err := h.auth.Grant(ctx, userID, req.DatabaseID, permission, principal.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"grant":   grant,
	})
}

type revokeRequest struct {
	UserID     string `json:"user_id"`
	DatabaseID string `json:"database_id"`
}

func (h *Handler) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.DatabaseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "database_id is required"))
		return
	}

	if err := h.auth.Revoke(r.Context(), userID, req.DatabaseID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
