package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdintelligence20/triggr4-hub/internal/catalog"
	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/identity"
)

type addItemRequest struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// AddItem stores a knowledge item under a catalog category given by id or name.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}

	category, ok := h.catalog.Lookup(req.Category)
	if !ok || category.ID == catalog.AllItemsID {
		Error(w, http.StatusBadRequest, "unknown category")
		return
	}

	item := &domain.KnowledgeItem{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Category:       category.Name,
		Title:          req.Title,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.repo.AddKnowledgeItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to add knowledge item", "organization_id", orgID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store item")
		return
	}

	JSON(w, http.StatusCreated, item)
}

// ListItems returns the caller's items, optionally filtered by ?category=.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name := ""
	if raw := r.URL.Query().Get("category"); raw != "" {
		category, ok := h.catalog.Lookup(raw)
		if !ok {
			Error(w, http.StatusBadRequest, "unknown category")
			return
		}
		if category.ID != catalog.AllItemsID {
			name = category.Name
		}
	}

	items, err := h.repo.ListKnowledgeItems(r.Context(), orgID, name)
	if err != nil {
		h.logger.Error("Failed to list knowledge items", "organization_id", orgID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []*domain.KnowledgeItem{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// Categories returns the category directory, "All Items" first.
func (h *Handler) Categories(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"categories": h.catalog.Categories()})
}
