// Package config handles configuration loading for difychat.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment overrides, e.g. DIFYCHAT_RELAY_API_KEY.
	EnvPrefix = "DIFYCHAT_"

	configDirName  = ".difychat"
	configFileName = "config.toml"
	storeFileName  = "difychat.db"

	// DefaultMaxUploadBytes is the largest image the relay and client accept.
	DefaultMaxUploadBytes = 10 * 1024 * 1024
)

// RelayConfig configures the relay server and its upstream API
type RelayConfig struct {
	Port                   int    `koanf:"port"`
	FrontendURL            string `koanf:"frontend_url"` // allowed CORS origin
	APIKey                 string `koanf:"api_key"`
	AppID                  string `koanf:"app_id"`
	APIBaseURL             string `koanf:"api_base_url"`
	MaxUploadBytes         int64  `koanf:"max_upload_bytes"`
	MaxConnections         int    `koanf:"max_connections"`
	UpstreamTimeoutSeconds int    `koanf:"upstream_timeout_seconds"`
}

// ClientConfig configures the chat client's connection to the relay
type ClientConfig struct {
	RelayURL       string `koanf:"relay_url"`
	User           string `koanf:"user"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// StoreConfig configures the local conversation store
type StoreConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"` // reload when another process writes the store
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// UIConfig configures terminal rendering
type UIConfig struct {
	MarkdownStyle string `koanf:"markdown_style"` // glamour style: dark, light, notty...
	Width         int    `koanf:"width"`
}

// Config represents the application configuration
type Config struct {
	Relay  RelayConfig  `koanf:"relay"`
	Client ClientConfig `koanf:"client"`
	Store  StoreConfig  `koanf:"store"`
	Log    LogConfig    `koanf:"log"`
	UI     UIConfig     `koanf:"ui"`
}

// defaults returns the default configuration as a flat koanf map
func defaults() map[string]interface{} {
	storePath := storeFileName
	if dir, err := GetConfigDir(); err == nil {
		storePath = filepath.Join(dir, storeFileName)
	}

	return map[string]interface{}{
		"relay.port":                     3001,
		"relay.frontend_url":             "http://localhost:5173",
		"relay.api_base_url":             "https://api.dify.ai/v1",
		"relay.max_upload_bytes":         DefaultMaxUploadBytes,
		"relay.max_connections":          256,
		"relay.upstream_timeout_seconds": 300,
		"client.relay_url":               "http://localhost:3001/api",
		"client.user":                    "web_user",
		"client.timeout_seconds":         300,
		"store.path":                     storePath,
		"store.watch":                    true,
		"log.level":                      "warn",
		"log.format":                     "text",
		"ui.markdown_style":              "dark",
		"ui.width":                       80,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(defaults(), "."), nil)

	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, configDirName), nil
}

// GetConfigPath returns the path to the default config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFileName), nil
}

// LoadConfig loads the configuration. An explicit configPath must exist;
// otherwise ./difychat.toml and ~/.difychat/config.toml are tried in order.
// Environment variables override file values.
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	// Variable names used by the original web app deployment
	if legacy := legacyEnv(); len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return nil, fmt.Errorf("error loading environment: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)

	return &cfg, nil
}

func defaultPaths() []string {
	paths := []string{"./difychat.toml"}
	if p, err := GetConfigPath(); err == nil {
		paths = append(paths, p)
	}
	return paths
}

// envKey maps DIFYCHAT_RELAY_API_KEY to relay.api_key: the first segment is
// the section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + key
}

func legacyEnv() map[string]interface{} {
	mapping := map[string]string{
		"DIFY_API_KEY":      "relay.api_key",
		"DIFY_APP_ID":       "relay.app_id",
		"DIFY_API_BASE_URL": "relay.api_base_url",
		"FRONTEND_URL":      "relay.frontend_url",
		"PORT":              "relay.port",
	}

	out := map[string]interface{}{}
	for name, key := range mapping {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			out[key] = v
		}
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	sampleConfig := `# difychat configuration

[relay]
port = 3001
frontend_url = "http://localhost:5173"
api_base_url = "https://api.dify.ai/v1"
api_key = "app-your-dify-api-key"
app_id = "your-dify-app-id"
max_upload_bytes = 10485760

[client]
relay_url = "http://localhost:3001/api"
user = "web_user"
timeout_seconds = 300

[store]
watch = true

[log]
level = "warn"
format = "text"

[ui]
markdown_style = "dark"
width = 80
`

	// 0o600 because the file carries the upstream API key
	return os.WriteFile(configPath, []byte(sampleConfig), 0o600)
}

// ValidateRelay checks the settings the relay cannot start without
func ValidateRelay(cfg *Config) error {
	if cfg.Relay.APIKey == "" {
		return fmt.Errorf("relay api_key is required (set DIFY_API_KEY or %sRELAY_API_KEY)", EnvPrefix)
	}
	if cfg.Relay.AppID == "" {
		return fmt.Errorf("relay app_id is required (set DIFY_APP_ID or %sRELAY_APP_ID)", EnvPrefix)
	}
	if _, err := url.ParseRequestURI(cfg.Relay.APIBaseURL); err != nil {
		return fmt.Errorf("relay api_base_url is invalid: %w", err)
	}
	if cfg.Relay.Port <= 0 || cfg.Relay.Port > 65535 {
		return fmt.Errorf("relay port %d is out of range", cfg.Relay.Port)
	}
	return nil
}

// ValidateClient checks the settings the chat client needs
func ValidateClient(cfg *Config) error {
	u, err := url.ParseRequestURI(cfg.Client.RelayURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("client relay_url %q is invalid", cfg.Client.RelayURL)
	}
	if strings.TrimSpace(cfg.Client.User) == "" {
		return fmt.Errorf("client user is required")
	}
	return nil
}
