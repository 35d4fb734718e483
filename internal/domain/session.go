// Package domain contains core domain types for the FixMate application.
package domain

import (
	"time"
	"unicode/utf8"
)

// DefaultSessionTitle is the sentinel title a session carries until the
// first user message rewrites it.
const DefaultSessionTitle = "New conversation"

// TitleRuneLimit is the maximum number of visible characters kept when a
// session title is derived from the first user message.
const TitleRuneLimit = 50

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session transcript. Messages are immutable
// once appended.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Session is one persisted conversation thread. The message log is
// append-only for the lifetime of the session.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// DeriveTitle truncates the first user message into a session title,
// appending an ellipsis marker only when truncation occurred.
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= TitleRuneLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleRuneLimit]) + "..."
}
