package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/identity"
	"github.com/bdintelligence20/triggr4-hub/internal/store"
)

const defaultSessionTitle = "Chat Session"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

type saveRequest struct {
	SessionID string                 `json:"session_id"`
	Title     string                 `json:"title"`
	Messages  []domain.StoredMessage `json:"messages"`
	Category  string                 `json:"category"`
}

type sessionResponse struct {
	domain.SessionSummary
	Messages []domain.StoredMessage `json:"messages"`
}

// History lists the caller's sessions, most recently updated first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to list sessions", "organization_id", orgID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat history")
		return
	}

	summaries := lo.Map(sessions, func(s *domain.Session, _ int) domain.SessionSummary { return s.Summary() })
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

// GetSession returns one session with its messages.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if !sessionIDPattern.MatchString(sessionID) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := h.repo.GetSession(r.Context(), orgID, sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "organization_id", orgID, "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	messages := session.Messages
	if messages == nil {
		messages = []domain.StoredMessage{}
	}
	JSON(w, http.StatusOK, sessionResponse{SessionSummary: session.Summary(), Messages: messages})
}

// SaveSession creates a session when session_id is absent, otherwise
// replaces the messages of the caller's session with that id.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	orgID := identity.OrganizationIDFromContext(r.Context())
	if orgID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req saveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	now := time.Now()
	session := &domain.Session{
		SessionID:      strings.TrimSpace(req.SessionID),
		OrganizationID: orgID,
		Title:          strings.TrimSpace(req.Title),
		Category:       strings.TrimSpace(req.Category),
		Messages:       req.Messages,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if session.Title == "" {
		session.Title = defaultSessionTitle
	}
	if session.Messages == nil {
		session.Messages = []domain.StoredMessage{}
	}

	created := session.SessionID == ""
	if created {
		session.SessionID = uuid.NewString()
	} else if !sessionIDPattern.MatchString(session.SessionID) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.repo.UpsertSession(r.Context(), session); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("Failed to save session", "organization_id", orgID, "session_id", session.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	h.logger.Info("Chat session saved", "organization_id", orgID, "session_id", session.SessionID,
		"messages", len(session.Messages), "created", created)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	JSON(w, status, map[string]string{
		"session_id": session.SessionID,
		"title":      session.Title,
		"updated_at": now.UTC().Format(time.RFC3339),
	})
}
