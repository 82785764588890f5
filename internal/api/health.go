package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdintelligence20/triggr4-hub/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler reports readiness of the API and its dependencies.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Ready returns the health status of the API and its database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status, statusCode := "healthy", http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Readiness check failed", "error", err)
		checks["database"] = "unreachable"
		status, statusCode = "degraded", http.StatusServiceUnavailable
	}

	JSON(w, statusCode, map[string]interface{}{"status": status, "checks": checks})
}

// RegisterHealth registers the readiness route. Liveness is served by the
// router's heartbeat middleware on /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/ready", h.Ready)
}
