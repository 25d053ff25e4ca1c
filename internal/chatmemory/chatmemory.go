// Package chatmemory provides an append-only, per-(user, session) message
// log with tenant isolation: the student-support history C2 depends on.
package chatmemory

import (
	"strings"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleStudent   Role = "student"
	RoleAssistant Role = "assistant"
)

// Message is a single persisted turn.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Intent    string            `json:"intent,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Ts        time.Time         `json:"ts"`
}

const maxLinePreview = 300

// FormatLine renders a message as a single truncated transcript line.
func (m Message) FormatLine() string {
	speaker := "Student"
	if m.Role == RoleAssistant {
		speaker = "Assistant"
	}
	content := m.Content
	if len(content) > maxLinePreview {
		content = content[:maxLinePreview]
	}
	return speaker + ": " + content
}

// Store defines the persistence contract for chat memory (C2).
//
// Any method taking a user_id MUST apply it as a hard filter: a caller that
// omits it gets nothing back, never another student's history.
type Store interface {
	// SaveMessage appends a message. Empty content or role=system is silently
	// dropped, never returned as an error.
	SaveMessage(userID, sessionID string, role Role, content, intent, agent string, metadata map[string]string) error

	// SessionHistory returns the most recent limit messages for (userID, sessionID)
	// in chronological order.
	SessionHistory(userID, sessionID string, limit int) ([]Message, error)

	// UserContext formats the last maxMessages turns as a single prompt-ready
	// string, or "" if there is no history.
	UserContext(userID, sessionID string, maxMessages int) (string, error)

	// SearchConversation performs a user-scoped search over stored content.
	SearchConversation(userID, query string, limit int) ([]Message, error)

	// DeleteSession removes every message owned by userID within sessionID.
	DeleteSession(userID, sessionID string) error
}

// FormatUserContext renders messages into the get_user_context string shape.
func FormatUserContext(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.FormatLine())
	}
	return strings.Join(lines, "\n")
}
