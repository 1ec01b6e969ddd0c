package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndShow(t *testing.T) {
	isolateEnv(t)
	deps := testDeps(&fakeChatClient{})
	path := filepath.Join(t.TempDir(), "difychat.toml")

	out, err := execute(t, deps, "", "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("init output = %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := execute(t, deps, "", "--config", path, "config", "init"); err == nil {
		t.Error("init should refuse to overwrite")
	}

	out, err = execute(t, deps, "", "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"relay.port", "3001", "app-*", "client.relay_url"} {
		if !strings.Contains(out, want) {
			t.Errorf("show should contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "app-your-dify-api-key") {
		t.Error("api key should be masked")
	}
}

func TestConfigInit_DefaultPath(t *testing.T) {
	home := isolateEnv(t)

	if _, err := execute(t, testDeps(&fakeChatClient{}), "", "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".difychat", "config.toml")); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"abc", "***"},
		{"app-secret", "app-******"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
