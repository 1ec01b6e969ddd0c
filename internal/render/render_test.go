package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tale555/dify-chat-webapp/internal/config"
	"github.com/tale555/dify-chat-webapp/internal/history"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Width != DefaultWidth {
		t.Errorf("expected Width=%d, got %d", DefaultWidth, opts.Width)
	}
	if opts.Style != "dark" {
		t.Errorf("expected Style='dark', got %s", opts.Style)
	}

	opts = opts.WithWidth(100).WithStyle("light")
	if opts.Width != 100 || opts.Style != "light" {
		t.Errorf("chained options = %+v", opts)
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("GLAMOUR_STYLE", "")

	opts := FromConfig(config.UIConfig{MarkdownStyle: "dracula", Width: 120})
	if opts.Style != "dracula" || opts.Width != 120 {
		t.Errorf("FromConfig() = %+v", opts)
	}

	// Zero values keep defaults
	opts = FromConfig(config.UIConfig{})
	if opts.Style != "dark" || opts.Width != 80 {
		t.Errorf("FromConfig(zero) = %+v", opts)
	}

	t.Setenv("GLAMOUR_STYLE", "notty")
	opts = FromConfig(config.UIConfig{MarkdownStyle: "dracula"})
	if opts.Style != "notty" {
		t.Errorf("GLAMOUR_STYLE should win, got %s", opts.Style)
	}
}

func TestMarkdown(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		width    int
		contains string
	}{
		{
			name:     "heading",
			input:    "# Hello World",
			width:    80,
			contains: "Hello", // Check individual words due to ANSI codes
		},
		{
			name:     "bold",
			input:    "This is **bold** text",
			width:    80,
			contains: "bold",
		},
		{
			name:     "code_block",
			input:    "```go\nfmt.Println(\"hello\")\n```",
			width:    80,
			contains: "Println",
		},
		{
			name:     "narrow_width",
			input:    "# Long heading that should wrap",
			width:    40,
			contains: "Long",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions().WithWidth(tc.width)
			output, err := Markdown(tc.input, opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(output, tc.contains) {
				t.Errorf("output should contain %q, got: %s", tc.contains, output)
			}
		})
	}
}

func TestMarkdownEmoji(t *testing.T) {
	output, err := Markdown("Hello :smile: world", DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(output, ":smile:") {
		t.Errorf("emoji should have been converted, got: %s", output)
	}
}

func TestMarkdownInvalidStyle(t *testing.T) {
	_, err := Markdown("# Test", DefaultOptions().WithStyle("nonexistent_style_path"))
	if err == nil {
		t.Error("expected error for invalid style path")
	}
}

func TestValidateStyle(t *testing.T) {
	for _, s := range AvailableStyles() {
		if err := ValidateStyle(s.Name); err != nil {
			t.Errorf("ValidateStyle(%s) error = %v", s.Name, err)
		}
	}

	if err := ValidateStyle("no-such-style"); err == nil {
		t.Error("ValidateStyle() should reject unknown styles")
	}

	path := filepath.Join(t.TempDir(), "style.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateStyle(path); err != nil {
		t.Errorf("ValidateStyle(file) error = %v", err)
	}
}

func TestThemeForStyle(t *testing.T) {
	tests := []struct {
		style string
		want  string
	}{
		{StyleDark, StyleDark},
		{StyleAuto, StyleDark},
		{StyleLight, StyleLight},
		{StyleDracula, StyleDracula},
		{StylePink, StyleDracula},
		{StyleNoTTY, StyleNoTTY},
		{StyleASCII, StyleNoTTY},
		{"/path/to/custom.json", StyleDark},
	}

	for _, tt := range tests {
		if got := ThemeForStyle(tt.style).Name; got != tt.want {
			t.Errorf("ThemeForStyle(%s) = %s, want %s", tt.style, got, tt.want)
		}
	}
}

func TestTUITheme_RoleColor(t *testing.T) {
	if got := LightTheme.RoleColor(history.RoleUser); got != LightTheme.User {
		t.Errorf("RoleColor(user) = %s, want %s", got, LightTheme.User)
	}
	if got := LightTheme.RoleColor(history.RoleAssistant); got != LightTheme.Assistant {
		t.Errorf("RoleColor(assistant) = %s, want %s", got, LightTheme.Assistant)
	}
	if got := PlainTheme.RoleColor(history.RoleUser); got != "" {
		t.Errorf("plain RoleColor(user) = %q, want no color", got)
	}
}

func TestSetTUITheme(t *testing.T) {
	defer SetTUITheme(DarkTheme)

	SetTUITheme(ThemeForStyle(StyleLight))
	if GetTUITheme().Name != StyleLight {
		t.Errorf("GetTUITheme() = %s, want light", GetTUITheme().Name)
	}
}
