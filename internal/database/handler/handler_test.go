package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d1gate/internal/auth/service"
	"d1gate/internal/auth/store/access"
	"d1gate/internal/auth/store/session"
	"d1gate/internal/auth/store/user"
	"d1gate/internal/database"
	"d1gate/internal/platform/middleware"
	"d1gate/pkg/domain"
)

type testEnv struct {
	router      chi.Router
	svc         *service.Service
	adminCookie string
	userCookie  string
	userID      domain.UserID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(user.New(), session.New(), access.New(), logger, nil)
	svc.SetSweepProbability(0)
	registry := database.NewRegistry(t.TempDir(), true, logger)
	t.Cleanup(registry.Close)

	_, err := svc.Bootstrap(context.Background(), "admin", "admin@example.com", "adminpw")
	require.NoError(t, err)
	regular, err := svc.Register(context.Background(), "alice", "alice@example.com", "secret1", domain.RoleUser)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SessionAuth(svc, logger))
	New(registry, svc, logger).Register(r)

	env := &testEnv{router: r, svc: svc, userID: regular.ID}
	env.adminCookie = env.login(t, "admin", "adminpw")
	env.userCookie = env.login(t, "alice", "secret1")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	sd, _, err := e.svc.Login(context.Background(), username, password, "", "")
	require.NoError(t, err)
	return sd.SessionID.String()
}

func (e *testEnv) call(t *testing.T, method, path, cookie string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: cookie})
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *testEnv) createDatabase(t *testing.T, name string) string {
	t.Helper()
	rec := e.call(t, http.MethodPost, "/api/databases/", e.adminCookie, map[string]string{
		"name":      name,
		"api_token": "tok-secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["database"].(map[string]any)["id"].(string)
}

func TestDatabaseCRUD(t *testing.T) {
	env := newTestEnv(t)

	id := env.createDatabase(t, "analytics")

	t.Run("create never echoes the token", func(t *testing.T) {
		rec := env.call(t, http.MethodGet, "/api/databases/", env.adminCookie, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "tok-secret")
		assert.Len(t, decode(t, rec)["databases"].([]any), 1)
	})

	t.Run("create without name fails", func(t *testing.T) {
		rec := env.call(t, http.MethodPost, "/api/databases/", env.adminCookie, map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		rec := env.call(t, http.MethodPut, "/api/databases/"+id, env.adminCookie, map[string]string{
			"description": "event rollups",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		db := decode(t, rec)["database"].(map[string]any)
		assert.Equal(t, "event rollups", db["description"])
	})

	t.Run("update missing database", func(t *testing.T) {
		rec := env.call(t, http.MethodPut, "/api/databases/missing", env.adminCookie, map[string]string{
			"description": "x",
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("test connectivity", func(t *testing.T) {
		rec := env.call(t, http.MethodPost, "/api/databases/"+id+"/test", env.adminCookie, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode(t, rec)["success"])

		rec = env.call(t, http.MethodPost, "/api/databases/missing/test", env.adminCookie, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.call(t, http.MethodDelete, "/api/databases/"+id, env.adminCookie, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.call(t, http.MethodDelete, "/api/databases/"+id, env.adminCookie, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		rec := env.call(t, http.MethodGet, "/api/databases/", env.userCookie, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAccessibleDatabases(t *testing.T) {
	env := newTestEnv(t)

	granted := env.createDatabase(t, "analytics")
	env.createDatabase(t, "billing")

	_, err := env.svc.Grant(context.Background(), env.userID, granted, domain.PermissionRead, env.userID)
	require.NoError(t, err)

	t.Run("regular user sees granted databases only", func(t *testing.T) {
		rec := env.call(t, http.MethodGet, "/api/databases/accessible", env.userCookie, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		dbs := decode(t, rec)["databases"].([]any)
		require.Len(t, dbs, 1)
		assert.Equal(t, granted, dbs[0].(map[string]any)["id"])
	})

	t.Run("admin sees everything", func(t *testing.T) {
		rec := env.call(t, http.MethodGet, "/api/databases/accessible", env.adminCookie, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["databases"].([]any), 2)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := env.call(t, http.MethodGet, "/api/databases/accessible", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
