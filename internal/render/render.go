package render

import (
	"fmt"
	"strings"

	"github.com/tale555/dify-chat-webapp/internal/history"
)

// Markdown renders answer markdown for terminal display with a pooled renderer
func Markdown(content string, opts Options) (string, error) {
	return answers.render(keyFor(opts), content)
}

// ImageMarker is the line shown in place of an attached image
func ImageMarker(path string) string {
	return fmt.Sprintf("[Image: %s]", path)
}

// Message renders one transcript message. Assistant content is markdown;
// user content is shown as typed, followed by the image marker if any.
func Message(msg history.Message, opts Options) (string, error) {
	if msg.Role != history.RoleAssistant {
		var b strings.Builder
		b.WriteString(msg.Content)
		if msg.ImageURL != "" {
			if msg.Content != "" {
				b.WriteString("\n")
			}
			b.WriteString(ImageMarker(msg.ImageURL))
		}
		return b.String(), nil
	}

	out, err := Markdown(msg.Content, opts)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

// Transcript renders a whole conversation with numbered role headers
func Transcript(conv *history.Conversation, opts Options) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", conv.Title)

	for i, msg := range conv.Messages {
		body, err := Message(msg, opts)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, msg.Role.Label(), body)
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
