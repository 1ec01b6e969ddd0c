// Package render draws conversation messages for the terminal.
package render

import (
	"os"

	"github.com/tale555/dify-chat-webapp/internal/config"
)

// Wrap widths
const (
	DefaultWidth = 80
	MinWidth     = 20
)

// Options selects how assistant answers are drawn. Emoji shortcodes,
// hard line breaks and table wrapping are always on for answers.
type Options struct {
	// Width is the wrap width. Values below MinWidth are raised to it.
	Width int

	// Style is a glamour standard style name or a path to a JSON style file
	Style string
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Width: DefaultWidth,
		Style: StyleDark,
	}
}

// FromConfig builds options from the ui section. GLAMOUR_STYLE overrides
// the configured style.
func FromConfig(ui config.UIConfig) Options {
	opts := DefaultOptions()
	if ui.MarkdownStyle != "" {
		opts.Style = ui.MarkdownStyle
	}
	if ui.Width > 0 {
		opts.Width = ui.Width
	}
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		opts.Style = style
	}
	return opts
}

// WithWidth returns Options with the specified width.
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style.
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}
