package session

import "github.com/frontdesk-ai/frontdesk/pkg/core/types"

// conversationLog is the in-memory history for one connection. It feeds
// completion context and is append-only; there is no truncation because
// sessions are bounded by MaxSessionDuration.
type conversationLog struct {
	messages []types.Message
}

func (l *conversationLog) appendUser(text string) {
	l.messages = append(l.messages, types.Message{Role: types.RoleUser, Text: text})
}

func (l *conversationLog) appendAssistant(text string) {
	l.messages = append(l.messages, types.Message{Role: types.RoleAssistant, Text: text})
}

// snapshot returns a copy safe to hand to a completion goroutine.
func (l *conversationLog) snapshot() []types.Message {
	out := make([]types.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *conversationLog) len() int { return len(l.messages) }
