package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "d1gate/pkg/domain-errors"
	"d1gate/pkg/platform/sentinel"
	"d1gate/pkg/requestcontext"
)

// Config describes one registered database connection. The API token is
// write-only: it is accepted on create/update and never echoed back.
type Config struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
	DatabaseID  string    `json:"database_id,omitempty"`
	APIToken    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConfigUpdate carries the optional fields of a partial config update.
type ConfigUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	AccountID   *string `json:"account_id"`
	DatabaseID  *string `json:"database_id"`
	APIToken    *string `json:"api_token"`
}

// Registry tracks database configs and their live handles. In dev mode every
// registered database is backed by a local SQLite file under dir; otherwise
// handles are stubs standing in for remote bindings.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
	handles map[string]Handle

	dir     string
	devMode bool
	logger  *slog.Logger
}

func NewRegistry(dir string, devMode bool, logger *slog.Logger) *Registry {
	return &Registry{
		configs: make(map[string]*Config),
		handles: make(map[string]Handle),
		dir:     dir,
		devMode: devMode,
		logger:  logger,
	}
}

// Create registers a new database connection and opens its handle.
func (r *Registry) Create(ctx context.Context, cfg Config) (*Config, error) {
	if cfg.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "database name is required")
	}

	now := requestcontext.Now(ctx)
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	handle, err := r.open(cfg.ID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.ID] = &cfg
	r.handles[cfg.ID] = handle

	r.logger.InfoContext(ctx, "database registered", "database_id", cfg.ID, "name", cfg.Name)
	out := cfg
	return &out, nil
}

func (r *Registry) open(id string) (Handle, error) {
	if !r.devMode {
		return stubHandle{}, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return newSQLiteHandle(filepath.Join(r.dir, id+".db"))
}

// Get returns the config for id.
func (r *Registry) Get(_ context.Context, id string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *cfg
	return &out, nil
}

// List returns every registered config.
func (r *Registry) List(_ context.Context) []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		c := *cfg
		out = append(out, &c)
	}
	return out
}

// IDs returns the IDs of every registered database.
func (r *Registry) IDs(_ context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	return ids
}

// Update merges the provided fields into the stored config.
func (r *Registry) Update(ctx context.Context, id string, update ConfigUpdate) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if update.Name != nil {
		if *update.Name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "database name is required")
		}
		cfg.Name = *update.Name
	}
	if update.Description != nil {
		cfg.Description = *update.Description
	}
	if update.AccountID != nil {
		cfg.AccountID = *update.AccountID
	}
	if update.DatabaseID != nil {
		cfg.DatabaseID = *update.DatabaseID
	}
	if update.APIToken != nil {
		cfg.APIToken = *update.APIToken
	}
	cfg.UpdatedAt = requestcontext.Now(ctx)

	out := *cfg
	return &out, nil
}

// Delete removes the config and closes its handle. The backing file, if any,
// is left on disk.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[id]; !ok {
		return sentinel.ErrNotFound
	}
	if handle, ok := r.handles[id]; ok {
		if err := handle.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close database handle", "error", err, "database_id", id)
		}
	}
	delete(r.configs, id)
	delete(r.handles, id)

	r.logger.InfoContext(ctx, "database removed", "database_id", id)
	return nil
}

// Handle returns the live handle for id.
func (r *Registry) Handle(id string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return handle, nil
}

// Test verifies the connection by running a trivial query through the handle.
func (r *Registry) Test(ctx context.Context, id string) error {
	handle, err := r.Handle(id)
	if err != nil {
		return err
	}
	return handle.Exec(ctx, "SELECT 1")
}

// Close closes every open handle. Called on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, handle := range r.handles {
		if err := handle.Close(); err != nil {
			r.logger.Error("failed to close database handle", "error", err, "database_id", id)
		}
	}
	r.handles = make(map[string]Handle)
}
