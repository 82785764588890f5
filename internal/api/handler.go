// Package api provides HTTP handlers for the hub API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/config"
	"github.com/bdintelligence20/triggr4-hub/internal/knowledge"
	"github.com/bdintelligence20/triggr4-hub/internal/live"
	"github.com/bdintelligence20/triggr4-hub/internal/store"
)

// maxBodySize bounds request bodies (1MB).
const maxBodySize = 1 << 20

// Handler serves the authenticated hub routes.
type Handler struct {
	repo        store.Repository
	catalog     *catalog.Catalog
	engine      *knowledge.Engine
	hub         *live.Hub
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewHandler creates a new Handler. hub may be nil to disable live events.
func NewHandler(repo store.Repository, cat *catalog.Catalog, engine *knowledge.Engine, hub *live.Hub, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limit, window := defaultRateLimit, defaultRateWindow
	if cfg != nil {
		limit, window = cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration
	}
	return &Handler{
		repo:        repo,
		catalog:     cat,
		engine:      engine,
		hub:         hub,
		rateLimiter: NewRateLimiter(limit, window),
		logger:      logger,
	}
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

// RegisterRoutes registers the hub routes. Callers apply identity middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.Query)
	r.Route("/chat", func(r chi.Router) {
		r.Get("/history", h.History)
		r.Get("/session/{sessionID}", h.GetSession)
		r.Post("/save", h.SaveSession)
	})
	r.Get("/items", h.ListItems)
	r.Post("/items", h.AddItem)
	r.Get("/categories", h.Categories)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
