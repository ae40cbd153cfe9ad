package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "d1gate/internal/auth/handler"
	"d1gate/internal/auth/service"
	"d1gate/internal/auth/store/access"
	"d1gate/internal/auth/store/session"
	"d1gate/internal/auth/store/user"
	"d1gate/internal/database"
	dbhandler "d1gate/internal/database/handler"
	"d1gate/internal/platform/config"
	"d1gate/internal/platform/httpserver"
	"d1gate/internal/platform/logger"
	"d1gate/internal/platform/metrics"
	"d1gate/internal/platform/middleware"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	auth := service.New(user.New(), session.New(), access.New(), log, m)

	adminPassword := cfg.AdminPassword
	if adminPassword == "" {
		if !cfg.DevMode {
			log.Error("D1GATE_ADMIN_PASSWORD is required outside dev mode")
			os.Exit(1)
		}
		adminPassword = generatedPassword()
		log.Warn("generated bootstrap admin password", "username", cfg.AdminUsername, "password", adminPassword)
	}
	if _, err := auth.Bootstrap(context.Background(), cfg.AdminUsername, cfg.AdminEmail, adminPassword); err != nil {
		log.Error("bootstrap admin failed", "error", err)
		os.Exit(1)
	}

	registry := database.NewRegistry(cfg.SQLiteDir, cfg.DevMode, log)
	defer registry.Close()

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.SessionAuth(auth, log))

	authhandler.New(auth, log).Register(r)
	dbhandler.New(registry, auth, log).Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, r)

	log.Info("starting d1gate", "addr", cfg.Addr, "dev_mode", cfg.DevMode)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// generatedPassword mints a random dev-mode bootstrap password.
func generatedPassword() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
