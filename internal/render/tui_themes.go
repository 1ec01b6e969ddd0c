package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tale555/dify-chat-webapp/internal/history"
)

// TUITheme colors the chat screen. It follows the markdown style so
// bubbles and answers agree.
type TUITheme struct {
	Name string

	Assistant lipgloss.Color // assistant bubbles, titles, input label
	User      lipgloss.Color // user bubbles, current conversation marker
	Highlight lipgloss.Color // list selection, attachments, spinner
	Warning   lipgloss.Color // delete confirmation
	Error     lipgloss.Color // failed answers and the error banner

	Border   lipgloss.Color
	Text     lipgloss.Color
	TextDim  lipgloss.Color
	TextMute lipgloss.Color
}

// RoleColor returns the bubble color for messages written by role
func (t TUITheme) RoleColor(role history.Role) lipgloss.Color {
	if role == history.RoleUser {
		return t.User
	}
	return t.Assistant
}

// Palettes, named after the markdown style they accompany
var (
	DarkTheme = TUITheme{
		Name:      StyleDark,
		Assistant: lipgloss.Color("#7aa2f7"),
		User:      lipgloss.Color("#9ece6a"),
		Highlight: lipgloss.Color("#bb9af7"),
		Warning:   lipgloss.Color("#e0af68"),
		Error:     lipgloss.Color("#f7768e"),
		Border:    lipgloss.Color("#414868"),
		Text:      lipgloss.Color("#c0caf5"),
		TextDim:   lipgloss.Color("#565f89"),
		TextMute:  lipgloss.Color("#3b4261"),
	}

	DraculaTheme = TUITheme{
		Name:      StyleDracula,
		Assistant: lipgloss.Color("#8be9fd"),
		User:      lipgloss.Color("#50fa7b"),
		Highlight: lipgloss.Color("#ff79c6"),
		Warning:   lipgloss.Color("#f1fa8c"),
		Error:     lipgloss.Color("#ff5555"),
		Border:    lipgloss.Color("#6272a4"),
		Text:      lipgloss.Color("#f8f8f2"),
		TextDim:   lipgloss.Color("#6272a4"),
		TextMute:  lipgloss.Color("#44475a"),
	}

	LightTheme = TUITheme{
		Name:      StyleLight,
		Assistant: lipgloss.Color("#1565c0"),
		User:      lipgloss.Color("#2e7d32"),
		Highlight: lipgloss.Color("#6a1b9a"),
		Warning:   lipgloss.Color("#ef6c00"),
		Error:     lipgloss.Color("#c62828"),
		Border:    lipgloss.Color("#bdbdbd"),
		Text:      lipgloss.Color("#212121"),
		TextDim:   lipgloss.Color("#616161"),
		TextMute:  lipgloss.Color("#9e9e9e"),
	}

	// PlainTheme leaves the terminal's colors alone
	PlainTheme = TUITheme{Name: StyleNoTTY}
)

var currentTUITheme = DarkTheme

// GetTUITheme returns the active palette
func GetTUITheme() TUITheme {
	return currentTUITheme
}

// SetTUITheme makes theme the active palette
func SetTUITheme(theme TUITheme) {
	currentTUITheme = theme
}

// ThemeForStyle picks the palette matching a markdown style. Custom style
// files get the dark palette.
func ThemeForStyle(style string) TUITheme {
	switch style {
	case StyleLight:
		return LightTheme
	case StyleDracula, StylePink:
		return DraculaTheme
	case StyleNoTTY, StyleASCII:
		return PlainTheme
	default:
		return DarkTheme
	}
}
