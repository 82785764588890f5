package chat

import (
	"strings"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
)

// DefaultHistoryWindow is the number of messages sent as context with a query.
const DefaultHistoryWindow = 10

// BuildHistory renders the last n messages, oldest first, one per line as
// "User: ..." or "AI: ...". The window spans every conversation in messages
// and is bounded by count only, so long messages can still produce a large
// transcript.
func BuildHistory(messages []domain.Message, n int) string {
	if n <= 0 || len(messages) == 0 {
		return ""
	}
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		prefix := "AI: "
		if m.Sender == domain.SenderUser {
			prefix = "User: "
		}
		lines = append(lines, prefix+m.Content)
	}
	return strings.Join(lines, "\n")
}
