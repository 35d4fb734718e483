// FixMate - Human-in-the-loop IT Remediation Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fixmate-app/fixmate/internal/api"
	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/config"
	"github.com/fixmate-app/fixmate/internal/conversation"
	"github.com/fixmate-app/fixmate/internal/fixer"
	"github.com/fixmate-app/fixmate/internal/middleware"
	"github.com/fixmate-app/fixmate/internal/session"
	"github.com/fixmate-app/fixmate/internal/sidecar"
	"github.com/fixmate-app/fixmate/internal/store"
	"github.com/fixmate-app/fixmate/internal/transcript"
	"github.com/fixmate-app/fixmate/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	seed, err := repo.LoadSessions(context.Background())
	if err != nil {
		slog.Error("Failed to load persisted sessions", "error", err)
		os.Exit(1)
	}
	sessions := session.NewStore(repo, seed)
	slog.Info("Sessions loaded", "count", len(seed))

	// Spawn the Python sidecar that owns AI, TTS and command execution.
	brain, err := sidecar.Spawn(cfg.SidecarCommand, logger)
	if err != nil {
		slog.Error("Failed to start sidecar", "error", err, "command", cfg.SidecarCommand)
		os.Exit(1)
	}
	defer func() {
		if closeErr := brain.Close(); closeErr != nil {
			slog.Error("Failed to close sidecar", "error", closeErr)
		}
	}()
	slog.Info("Sidecar started", "command", cfg.SidecarCommand)

	// Initialize services.
	gate := approval.NewGate()
	hub := transcript.NewHub(cfg.TranscriptBuffer)
	runner := fixer.NewRunner(brain, transcript.NewAnnouncingApprover(hub, gate))
	ctrl := conversation.NewController(sessions, brain, hub, gate, runner, cfg.HistoryLimit)
	defer ctrl.Close()

	// Initialize handlers.
	assistHandler := api.NewAssistHandler(sessions, ctrl, gate, hub, cfg.DefaultLang)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := transcript.NewWebSocketHandler(hub, gate, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	assistHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server. No WriteTimeout: the transcript socket stays open
	// for the life of the client.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
