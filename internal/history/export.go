package history

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

// ExportFormat represents the format for exporting conversations
type ExportFormat string

const (
	ExportFormatText     ExportFormat = "text"
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatHTML     ExportFormat = "html"
	ExportFormatJSON     ExportFormat = "json"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ParseExportFormat accepts a format name or its usual file extension
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return ExportFormatText, nil
	case "markdown", "md":
		return ExportFormatMarkdown, nil
	case "html", "pdf":
		return ExportFormatHTML, nil
	case "json":
		return ExportFormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (use text, md, html or json)", s)
}

// Extension returns the file extension including the dot
func (f ExportFormat) Extension() string {
	switch f {
	case ExportFormatMarkdown:
		return ".md"
	case ExportFormatHTML:
		return ".html"
	case ExportFormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Export renders conv in the given format
func Export(conv *Conversation, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatText:
		return []byte(ExportText(conv)), nil
	case ExportFormatMarkdown:
		return []byte(ExportMarkdown(conv)), nil
	case ExportFormatHTML:
		return []byte(ExportHTML(conv)), nil
	case ExportFormatJSON:
		return ExportJSON(conv)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// ExportText exports a conversation as plain text
func ExportText(conv *Conversation) string {
	var sb strings.Builder

	sb.WriteString("Conversation: " + conv.Title + "\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(exportTimeLayout) + "\n")
	sb.WriteString("Updated: " + conv.UpdatedAt.Format(exportTimeLayout) + "\n")
	sb.WriteString(fmt.Sprintf("Messages: %d\n", len(conv.Messages)))
	sb.WriteString("\n" + strings.Repeat("=", 50) + "\n\n")

	for i, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, msg.Role.Label()))
		if msg.ImageURL != "" {
			sb.WriteString("[Image attached]\n")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

var markdownEscaper = strings.NewReplacer(
	"\n", "\n\n",
	"*", `\*`,
	"#", `\#`,
)

// ExportMarkdown exports a conversation to Markdown format
func ExportMarkdown(conv *Conversation) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(conv.Title)
	sb.WriteString("\n\n")

	sb.WriteString("**Created:** ")
	sb.WriteString(conv.CreatedAt.Format(exportTimeLayout))
	sb.WriteString("\n")
	sb.WriteString("**Updated:** ")
	sb.WriteString(conv.UpdatedAt.Format(exportTimeLayout))
	sb.WriteString("\n")
	sb.WriteString("**Messages:** ")
	sb.WriteString(fmt.Sprintf("%d", len(conv.Messages)))
	sb.WriteString("\n\n---\n\n")

	for i, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, msg.Role.Label()))

		if msg.ImageURL != "" {
			sb.WriteString("![Attached image](")
			sb.WriteString(msg.ImageURL)
			sb.WriteString(")\n\n")
		}

		sb.WriteString(markdownEscaper.Replace(msg.Content))
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; line-height: 1.6; color: #333; }
h1 { border-bottom: 2px solid #333; padding-bottom: 10px; margin-bottom: 20px; }
.metadata { background: #f5f5f5; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
.message { margin-bottom: 30px; padding: 15px; border-left: 4px solid #ddd; background: #fafafa; }
.message.user { border-left-color: #3b82f6; }
.message.assistant { border-left-color: #10b981; }
.message-header { font-weight: bold; margin-bottom: 10px; font-size: 14px; }
.message-image { max-width: 100%%; height: auto; margin: 10px 0; border-radius: 5px; }
@media print { body { padding: 0; } .message { page-break-inside: avoid; } }
</style>
</head>
<body>
`

// ExportHTML exports a conversation as a printable HTML document
func ExportHTML(conv *Conversation) string {
	var sb strings.Builder
	title := html.EscapeString(conv.Title)

	sb.WriteString(fmt.Sprintf(htmlHead, title))
	sb.WriteString("<h1>" + title + "</h1>\n")
	sb.WriteString("<div class=\"metadata\">\n")
	sb.WriteString("<p><strong>Created:</strong> " + conv.CreatedAt.Format(exportTimeLayout) + "</p>\n")
	sb.WriteString("<p><strong>Updated:</strong> " + conv.UpdatedAt.Format(exportTimeLayout) + "</p>\n")
	sb.WriteString(fmt.Sprintf("<p><strong>Messages:</strong> %d</p>\n", len(conv.Messages)))
	sb.WriteString("</div>\n")

	for i, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("<div class=\"message %s\">\n", msg.Role))
		sb.WriteString(fmt.Sprintf("<div class=\"message-header\">%d. %s</div>\n", i+1, msg.Role.Label()))
		if msg.ImageURL != "" {
			sb.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"Attached image\" class=\"message-image\" />\n",
				html.EscapeString(msg.ImageURL)))
		}
		content := strings.ReplaceAll(html.EscapeString(msg.Content), "\n", "<br>")
		sb.WriteString("<div class=\"message-content\">" + content + "</div>\n")
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// ExportJSON exports a conversation to JSON format
func ExportJSON(conv *Conversation) ([]byte, error) {
	return json.MarshalIndent(conv, "", "  ")
}

var nonWordChars = regexp.MustCompile(`[^\w\s]`)

// ExportFileName builds a download file name from the title and date
func ExportFileName(conv *Conversation, format ExportFormat, now time.Time) string {
	base := strings.TrimSpace(nonWordChars.ReplaceAllString(conv.Title, ""))
	if base == "" {
		base = "conversation"
	}
	return base + "_" + now.Format("2006-01-02") + format.Extension()
}
