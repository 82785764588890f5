package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/identity"
	"github.com/bdintelligence20/triggr4-hub/internal/knowledge"
)

type queryRequest struct {
	Query     string `json:"query"`
	Category  string `json:"category"`
	Stream    bool   `json:"stream"`
	History   string `json:"history"`
	RequestID string `json:"request_id"`
}

type queryResponse struct {
	Response string          `json:"response"`
	Sources  []domain.Source `json:"sources"`
}

// Query answers a question from the caller's knowledge items. Progress is
// pushed to the live subscriber of request_id; the answer itself is always
// returned in the response body.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		Error(w, http.StatusBadRequest, "query is required")
		return
	}

	if !h.rateLimiter.Allow(orgID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	category := strings.TrimSpace(req.Category)
	if category == domain.AllItemsCategory {
		category = ""
	}

	answer, err := h.engine.Answer(r.Context(), orgID, knowledge.Question{
		Text:     req.Query,
		Category: category,
		History:  req.History,
	}, h.progressFunc(r.Context(), orgID, req.RequestID))
	if err != nil {
		h.logger.Error("Query failed", "organization_id", orgID, "request_id", req.RequestID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to search knowledge base")
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	JSON(w, http.StatusOK, queryResponse{Response: answer.Response, Sources: sources})
}

func (h *Handler) progressFunc(ctx context.Context, orgID, requestID string) knowledge.ProgressFunc {
	if h.hub == nil || requestID == "" {
		return nil
	}
	return func(stage, message string) {
		h.hub.Publish(ctx, orgID, domain.LiveEvent{RequestID: requestID, Stage: stage, Message: message})
	}
}
