// Package chat holds the transport-independent event and messenger contract.
// Only internal/bot knows the Telegram SDK.
package chat

import (
	"strings"
	"time"
)

// Kind classifies an inbound event.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindText
	KindMedia
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindMedia:
		return "media"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

// Event is one normalized inbound update.
type Event struct {
	Kind      Kind
	UpdateID  int
	UserID    int64
	ChatID    int64
	Username  string
	MessageID int

	// Command is lowercased and has no leading slash or @bot suffix.
	Command string
	Args    string
	// Text is the raw message text or caption.
	Text    string
	Content Content

	Callback  Callback
	Timestamp time.Time
}

// Callback describes a button press.
type Callback struct {
	ID        string
	Action    string
	Payload   string
	MessageID int
}

// ParseCommand splits "/cmd@bot args" into its lowercased name and the trimmed rest.
// ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// IsCommand reports whether ev is the named command.
func (ev Event) IsCommand(name string) bool {
	return ev.Kind == KindCommand && ev.Command == name
}

// PlainText returns the trimmed text of a non-command text event.
func (ev Event) PlainText() (string, bool) {
	if ev.Kind != KindText {
		return "", false
	}
	s := strings.TrimSpace(ev.Text)
	return s, s != ""
}
