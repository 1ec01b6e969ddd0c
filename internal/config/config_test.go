package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{"DIFY_API_KEY", "DIFY_APP_ID", "DIFY_API_BASE_URL", "FRONTEND_URL", "PORT"} {
		t.Setenv(name, "")
	}
	return home
}

func TestDefaultConfig(t *testing.T) {
	home := isolateEnv(t)
	cfg := DefaultConfig()

	if cfg.Relay.Port != 3001 {
		t.Errorf("Relay.Port = %d, want 3001", cfg.Relay.Port)
	}
	if cfg.Relay.APIBaseURL != "https://api.dify.ai/v1" {
		t.Errorf("Relay.APIBaseURL = %s", cfg.Relay.APIBaseURL)
	}
	if cfg.Relay.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("Relay.MaxUploadBytes = %d, want %d", cfg.Relay.MaxUploadBytes, DefaultMaxUploadBytes)
	}
	if cfg.Client.User != "web_user" {
		t.Errorf("Client.User = %s, want web_user", cfg.Client.User)
	}
	if cfg.Client.RelayURL != "http://localhost:3001/api" {
		t.Errorf("Client.RelayURL = %s", cfg.Client.RelayURL)
	}
	if want := filepath.Join(home, ".difychat", "difychat.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %s, want %s", cfg.Store.Path, want)
	}
	if !cfg.Store.Watch {
		t.Error("Store.Watch should default to true")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Relay.Port != 3001 {
		t.Errorf("Relay.Port = %d, want 3001", cfg.Relay.Port)
	}
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	isolateEnv(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadConfig() should fail for a missing explicit file")
	}
}

func TestLoadConfig_File(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "difychat.toml")
	content := `
[relay]
port = 4000
api_key = "app-file"

[client]
user = "alice"

[store]
path = "~/chats.db"
watch = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Relay.Port != 4000 {
		t.Errorf("Relay.Port = %d, want 4000", cfg.Relay.Port)
	}
	if cfg.Relay.APIKey != "app-file" {
		t.Errorf("Relay.APIKey = %s, want app-file", cfg.Relay.APIKey)
	}
	if cfg.Client.User != "alice" {
		t.Errorf("Client.User = %s, want alice", cfg.Client.User)
	}
	if cfg.Store.Watch {
		t.Error("Store.Watch should be false")
	}
	if strings.HasPrefix(cfg.Store.Path, "~") || !strings.HasSuffix(cfg.Store.Path, "chats.db") {
		t.Errorf("Store.Path = %s, want expanded home path", cfg.Store.Path)
	}
	// Untouched keys keep their defaults
	if cfg.Relay.APIBaseURL != "https://api.dify.ai/v1" {
		t.Errorf("Relay.APIBaseURL = %s", cfg.Relay.APIBaseURL)
	}
}

func TestLoadConfig_HomeFile(t *testing.T) {
	home := isolateEnv(t)

	dir := filepath.Join(home, ".difychat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ui]\nwidth = 120\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.UI.Width != 120 {
		t.Errorf("UI.Width = %d, want 120", cfg.UI.Width)
	}
}

func TestLoadConfig_LegacyEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DIFY_API_KEY", "app-legacy")
	t.Setenv("DIFY_APP_ID", "app-id-1")
	t.Setenv("PORT", "8080")
	t.Setenv("FRONTEND_URL", "https://chat.example.com")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Relay.APIKey != "app-legacy" {
		t.Errorf("Relay.APIKey = %s, want app-legacy", cfg.Relay.APIKey)
	}
	if cfg.Relay.AppID != "app-id-1" {
		t.Errorf("Relay.AppID = %s, want app-id-1", cfg.Relay.AppID)
	}
	if cfg.Relay.Port != 8080 {
		t.Errorf("Relay.Port = %d, want 8080", cfg.Relay.Port)
	}
	if cfg.Relay.FrontendURL != "https://chat.example.com" {
		t.Errorf("Relay.FrontendURL = %s", cfg.Relay.FrontendURL)
	}
}

func TestLoadConfig_PrefixedEnvWins(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DIFY_API_KEY", "app-legacy")
	t.Setenv("DIFYCHAT_RELAY_API_KEY", "app-prefixed")
	t.Setenv("DIFYCHAT_CLIENT_TIMEOUT_SECONDS", "15")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Relay.APIKey != "app-prefixed" {
		t.Errorf("Relay.APIKey = %s, want app-prefixed", cfg.Relay.APIKey)
	}
	if cfg.Client.TimeoutSeconds != 15 {
		t.Errorf("Client.TimeoutSeconds = %d, want 15", cfg.Client.TimeoutSeconds)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DIFYCHAT_RELAY_API_KEY", "relay.api_key"},
		{"DIFYCHAT_LOG_LEVEL", "log.level"},
		{"DIFYCHAT_UI_MARKDOWN_STYLE", "ui.markdown_style"},
		{"DIFYCHAT_DEBUG", "debug"},
	}

	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInitConfig(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := InitConfig(path); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after init error = %v", err)
	}
	if cfg.Relay.APIKey != "app-your-dify-api-key" {
		t.Errorf("Relay.APIKey = %s", cfg.Relay.APIKey)
	}

	if err := InitConfig(path); err == nil {
		t.Error("InitConfig() should refuse to overwrite an existing file")
	}
}

func TestValidateRelay(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing key", func(c *Config) { c.Relay.APIKey = "" }, true},
		{"missing app id", func(c *Config) { c.Relay.AppID = "" }, true},
		{"bad base url", func(c *Config) { c.Relay.APIBaseURL = "not a url" }, true},
		{"bad port", func(c *Config) { c.Relay.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Relay.APIKey = "app-key"
			cfg.Relay.AppID = "app-id"
			tt.mutate(cfg)

			err := ValidateRelay(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelay() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	isolateEnv(t)

	cfg := DefaultConfig()
	if err := ValidateClient(cfg); err != nil {
		t.Errorf("ValidateClient(default) error = %v", err)
	}

	cfg.Client.RelayURL = "localhost"
	if err := ValidateClient(cfg); err == nil {
		t.Error("ValidateClient() should reject a relay url without host")
	}

	cfg = DefaultConfig()
	cfg.Client.User = "  "
	if err := ValidateClient(cfg); err == nil {
		t.Error("ValidateClient() should reject a blank user")
	}
}
