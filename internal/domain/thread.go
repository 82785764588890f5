package domain

import (
	"time"
)

// DefaultThreadID is the bootstrap thread that exists before anything is saved.
const DefaultThreadID = "default"

// Thread is a conversation preview shown in the thread directory.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	LastMessage string    `json:"last_message"`
	Timestamp   time.Time `json:"timestamp"`
	UnreadCount int       `json:"unread_count"`
}

// IsDefault returns true for the bootstrap thread.
func (t Thread) IsDefault() bool {
	return t.ID == DefaultThreadID
}
