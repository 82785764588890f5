// Triggr4 Hub - knowledge hub API server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/bdintelligence20/triggr4-hub/internal/api"
	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/config"
	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/identity"
	"github.com/bdintelligence20/triggr4-hub/internal/knowledge"
	"github.com/bdintelligence20/triggr4-hub/internal/live"
	"github.com/bdintelligence20/triggr4-hub/internal/middleware"
	"github.com/bdintelligence20/triggr4-hub/internal/store"
	"github.com/bdintelligence20/triggr4-hub/web"
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

	for _, binding := range cfg.BootstrapTokens {
		if err := repo.UpsertToken(context.Background(), &domain.APIToken{
			Token:          binding.Token,
			OrganizationID: binding.OrganizationID,
			Role:           binding.Role,
		}); err != nil {
			slog.Error("Failed to seed API token", "organization_id", binding.OrganizationID, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("API tokens seeded", "count", len(cfg.BootstrapTokens))

	categories, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		slog.Error("Failed to load category catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Category catalog loaded", "categories", len(categories.Categories()))

	// Initialize services.
	hub := live.NewHub()
	engine := knowledge.NewEngine(repo, logger)

	// Initialize handlers.
	hubHandler := api.NewHandler(repo, categories, engine, hub, cfg, logger)
	defer hubHandler.Close()
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := live.NewWebSocketHandler(hub, cfg.AllowedOrigins)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Organization-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		hubHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/chat/live", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Live subscriptions are long-lived websockets, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
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

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
