package config

import (
	"log/slog"
	"os"
)

// Server captures process-level configuration.
type Server struct {
	Addr     string
	LogLevel slog.Level
	DevMode  bool

	// Bootstrap admin credentials. The password intentionally has no
	// default outside dev mode; main refuses to start without one.
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// SQLiteDir is where locally-backed database files live.
	SQLiteDir string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("D1GATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	level := slog.LevelInfo
	if os.Getenv("D1GATE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	adminUsername := os.Getenv("D1GATE_ADMIN_USERNAME")
	if adminUsername == "" {
		adminUsername = "admin"
	}
	adminEmail := os.Getenv("D1GATE_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@localhost.localdomain"
	}

	sqliteDir := os.Getenv("D1GATE_SQLITE_DIR")
	if sqliteDir == "" {
		sqliteDir = "data"
	}

	return Server{
		Addr:          addr,
		LogLevel:      level,
		DevMode:       os.Getenv("D1GATE_DEV_MODE") == "true",
		AdminUsername: adminUsername,
		AdminEmail:    adminEmail,
		AdminPassword: os.Getenv("D1GATE_ADMIN_PASSWORD"),
		SQLiteDir:     sqliteDir,
	}
}
