package domain

import (
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks a message typed by the user.
	SenderUser Sender = "user"
	// SenderAssistant marks a message produced by the hub.
	SenderAssistant Sender = "assistant"
)

// Source is a citation reference attached to an assistant message.
type Source struct {
	ID             string  `json:"id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Sources   []Source  `json:"sources,omitempty"`

	// IsStreaming marks a placeholder awaiting its real response. Never persisted.
	IsStreaming bool `json:"-"`
}

// StoredMessage is the wire and persisted form of a message.
type StoredMessage struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Sender    string   `json:"sender"`
	Timestamp string   `json:"timestamp"`
	Sources   []Source `json:"sources,omitempty"`
}

// ToStored converts a message to its wire form with an RFC 3339 timestamp.
func (m Message) ToStored() StoredMessage {
	return StoredMessage{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    string(m.Sender),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		Sources:   m.Sources,
	}
}
