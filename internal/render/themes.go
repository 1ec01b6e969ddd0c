package render

import (
	"fmt"
	"os"
)

// Glamour standard style names
const (
	StyleAuto       = "auto"
	StyleDark       = "dark"
	StyleLight      = "light"
	StyleDracula    = "dracula"
	StyleTokyoNight = "tokyo-night"
	StylePink       = "pink"
	StyleNoTTY      = "notty"
	StyleASCII      = "ascii"
)

// StyleInfo describes a selectable markdown style
type StyleInfo struct {
	Name        string
	Description string
}

// AvailableStyles lists the glamour standard styles
func AvailableStyles() []StyleInfo {
	return []StyleInfo{
		{Name: StyleDark, Description: "Dark theme (default)"},
		{Name: StyleLight, Description: "Light theme for bright terminals"},
		{Name: StyleAuto, Description: "Dark or light depending on the terminal background"},
		{Name: StyleDracula, Description: "Dracula color scheme"},
		{Name: StyleTokyoNight, Description: "Tokyo Night color scheme"},
		{Name: StylePink, Description: "Pink accents"},
		{Name: StyleNoTTY, Description: "Plain text (no styling)"},
		{Name: StyleASCII, Description: "ASCII-only output"},
	}
}

// IsBuiltinStyle reports whether style names a glamour standard style
func IsBuiltinStyle(style string) bool {
	for _, s := range AvailableStyles() {
		if s.Name == style {
			return true
		}
	}
	return false
}

// ValidateStyle accepts a standard style name or an existing style file
func ValidateStyle(style string) error {
	if IsBuiltinStyle(style) {
		return nil
	}
	if info, err := os.Stat(style); err == nil && !info.IsDir() {
		return nil
	}
	return fmt.Errorf("unknown markdown style %q (use a built-in style or a JSON style file)", style)
}
