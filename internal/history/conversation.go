// Package history provides local conversation history storage.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who wrote a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the display name of the role
func (r Role) Label() string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// Placeholder texts
const (
	NewConversationTitle = "New conversation"
	ImageAttachmentTitle = "Image attachment"
	TitleEllipsis        = "..."
	ErrorPrefix          = "Error: "

	titleMaxRunes = 30
)

// Message represents a single message in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ImageURL is display only; it holds the local path of an attached image.
	ImageURL string `json:"image_url,omitempty"`
}

// Conversation represents a complete chat conversation
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	// ConversationID is the upstream conversation handle, empty until the
	// first successful exchange.
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return &out
}

// NewID generates a conversation id
func NewID(now time.Time) string {
	return fmt.Sprintf("conv-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// CreateEmpty returns a new conversation that has not been saved yet
func CreateEmpty(now time.Time) *Conversation {
	return &Conversation{
		ID:        NewID(now),
		Title:     NewConversationTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveTitle computes a title from the first user message
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		title := strings.TrimSpace(m.Content)
		if title == "" {
			return ImageAttachmentTitle
		}
		runes := []rune(title)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + TitleEllipsis
		}
		return title
	}
	return NewConversationTitle
}

// FormatListDate formats t for the conversation list relative to now
func FormatListDate(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 0:
		return t.Format("15:04")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2")
	}
}
