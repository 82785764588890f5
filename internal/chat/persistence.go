package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/shared"
)

// DefaultSessionTitle is used when no better title can be derived.
const DefaultSessionTitle = "Chat Session"

// LoadHistory refreshes the directory from the organization's saved
// sessions. Failures are logged and leave the directory as it was.
func (m *Manager) LoadHistory(ctx context.Context) {
	org := m.Organization()
	if org.IsZero() {
		return
	}

	summaries, err := m.api.History(ctx)
	if err != nil {
		m.logger.Warn("Failed to load chat history", "organization_id", org.ID, "error", err)
		return
	}
	if m.Organization().ID != org.ID {
		return
	}
	m.dir.MergeSummaries(summaries)
	m.logger.Debug("Chat history loaded", "organization_id", org.ID, "sessions", len(summaries))
}

// LoadSession replaces the session's conversation with the server copy and
// makes it the active thread. Malformed timestamps become the current time.
func (m *Manager) LoadSession(ctx context.Context, sessionID string) error {
	org := m.Organization()
	remote, err := m.api.Session(ctx, sessionID)
	if err != nil {
		m.logger.Warn("Failed to load chat session", "session_id", sessionID, "error", err)
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if m.Organization().ID != org.ID {
		return fmt.Errorf("load session %s: organization changed", sessionID)
	}

	category := remote.Category
	if category == "" {
		category = sessionID
	}

	messages := make([]domain.Message, 0, len(remote.Messages))
	for _, rm := range remote.Messages {
		msg := domain.Message{
			ID:        rm.ID,
			Content:   rm.Content,
			Sender:    domain.SenderAssistant,
			Timestamp: timestampOrNow(rm.Timestamp, m.now),
			Category:  category,
			Sources:   rm.Sources,
		}
		if rm.Sender == string(domain.SenderUser) {
			msg.Sender = domain.SenderUser
		}
		if msg.ID == "" {
			msg.ID = formatID(m.ctrl.ids.Next())
		}
		messages = append(messages, msg)
	}

	thread := domain.Thread{
		ID:          sessionID,
		Title:       remote.Title,
		Category:    category,
		LastMessage: remote.LastMessage,
	}
	if existing, ok := m.dir.Get(sessionID); ok {
		thread.UnreadCount = existing.UnreadCount
	}
	if ts, ok := parseTimestamp(remote.UpdatedAt); ok {
		thread.Timestamp = ts
	}
	if n := len(messages); n > 0 {
		thread.LastMessage = messages[n-1].Content
		thread.Timestamp = messages[n-1].Timestamp
	}

	m.mu.Lock()
	m.activeThread = sessionID
	m.chatCategory = category
	m.mu.Unlock()

	m.dir.Upsert(thread)
	m.store.ReplaceCategory(category, messages)

	m.logger.Info("Chat session loaded", "session_id", sessionID, "messages", len(messages))
	return nil
}

// SaveSession persists the active thread's messages. The first save of the
// bootstrap thread promotes it to the server-assigned session id. A thread
// with no settled messages is not saved.
func (m *Manager) SaveSession(ctx context.Context, title string) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	org := m.org
	active := m.activeThread
	category := m.chatCategory
	m.mu.Unlock()

	if category == "" {
		return nil
	}
	messages := lo.Reject(m.store.ByCategory(category), func(msg domain.Message, _ int) bool { return msg.IsStreaming })
	if len(messages) == 0 {
		return nil
	}

	thread, _ := m.dir.Get(active)
	req := SaveRequest{
		Title:    sessionTitle(title, thread.Title, messages),
		Messages: lo.Map(messages, func(msg domain.Message, _ int) domain.StoredMessage { return msg.ToStored() }),
		Category: category,
	}
	firstSave := active == "" || active == domain.DefaultThreadID
	if !firstSave {
		req.SessionID = active
	}

	sessionID, err := m.api.Save(ctx, req)
	if err != nil {
		m.logger.Warn("Failed to save chat session", "thread_id", active, "error", err)
		return fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	if m.org.ID != org.ID {
		m.mu.Unlock()
		return nil
	}
	if firstSave && m.activeThread == active {
		m.activeThread = sessionID
	}
	m.mu.Unlock()

	if firstSave {
		m.dir.Promote(domain.DefaultThreadID, sessionID, req.Title)
		m.logger.Info("Chat session created", "session_id", sessionID)
	}

	m.LoadHistory(ctx)
	return nil
}

// sessionTitle picks explicit > thread title > first 40 runes of the first
// message > DefaultSessionTitle.
func sessionTitle(explicit, threadTitle string, messages []domain.Message) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if t := strings.TrimSpace(threadTitle); t != "" {
		return t
	}
	if len(messages) > 0 {
		if t := shared.TruncateRunes(strings.TrimSpace(messages[0].Content), threadTitleRunes); t != "" {
			return t
		}
	}
	return DefaultSessionTitle
}
