package history

import (
	"strings"
	"testing"
)

func TestStore_Search(t *testing.T) {
	s, _, clock := newTestStore(t)

	a := CreateEmpty(clock.Now())
	a.Messages = []Message{{Role: RoleUser, Content: "Explain goroutines"}, {Role: RoleAssistant, Content: "Goroutines are cheap threads"}}
	a.Title = DeriveTitle(a.Messages)

	b := CreateEmpty(clock.Now())
	b.Messages = []Message{{Role: RoleUser, Content: "Recipe"}, {Role: RoleAssistant, Content: "Use fresh basil and tomatoes"}}
	b.Title = DeriveTitle(b.Messages)

	_ = s.Save(a)
	_ = s.Save(b)

	results := s.Search("GOROUTINES", false)
	if len(results) != 1 || results[0].MatchField != "title" || results[0].MatchIndex != -1 {
		t.Fatalf("title search = %+v", results)
	}

	if results := s.Search("basil", false); len(results) != 0 {
		t.Errorf("title-only search should not match content: %+v", results)
	}

	results = s.Search("basil", true)
	if len(results) != 1 {
		t.Fatalf("content search returned %d results", len(results))
	}
	if results[0].MatchField != "content" || results[0].MatchIndex != 1 {
		t.Errorf("content match = %+v", results[0])
	}
	if !strings.Contains(results[0].MatchSnippet, "basil") {
		t.Errorf("snippet = %q", results[0].MatchSnippet)
	}
}

func TestExtractSnippet(t *testing.T) {
	content := strings.Repeat("x", 100) + "needle" + strings.Repeat("y", 100)

	snippet := extractSnippet(content, "needle", 20)
	if !strings.HasPrefix(snippet, "...") || !strings.HasSuffix(snippet, "...") {
		t.Errorf("snippet should be trimmed on both sides: %q", snippet)
	}
	if !strings.Contains(snippet, "needle") {
		t.Errorf("snippet should contain the match: %q", snippet)
	}

	if got := extractSnippet("short text", "text", 100); got != "short text" {
		t.Errorf("short snippet = %q", got)
	}

	multibyte := strings.Repeat("あ", 60) + "猫" + strings.Repeat("い", 60)
	if got := extractSnippet(multibyte, "猫", 10); !strings.Contains(got, "猫") {
		t.Errorf("multibyte snippet = %q", got)
	}
}
