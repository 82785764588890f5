package domain

import (
	"time"
)

// SessionSummary is the list form of a persisted session.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	LastMessage  string `json:"last_message"`
	Category     string `json:"category"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Session is a persisted conversation with its messages.
type Session struct {
	SessionID      string
	OrganizationID string
	Title          string
	Category       string
	Messages       []StoredMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LastMessage returns the content of the newest message, or empty string.
func (s *Session) LastMessage() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// Summary returns the list form of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:    s.SessionID,
		Title:        s.Title,
		LastMessage:  s.LastMessage(),
		Category:     s.Category,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
