// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the hub API server configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	CatalogPath     string
	AllowedOrigins  []string
	BootstrapTokens []TokenBinding
	RateLimit       RateLimitConfig
}

// RateLimitConfig controls per-organization query throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TokenBinding is a bearer token seeded at startup.
type TokenBinding struct {
	Token          string
	OrganizationID string
	Role           string
}

// Load reads server configuration from environment variables.
func Load() (*Config, error) {
	tokens, err := parseTokenBindings(getEnv("HUB_API_TOKENS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/hub.db"),
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		BootstrapTokens: tokens,
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("QUERY_RATE_LIMIT", 30),
			WindowDuration:    getEnvDuration("QUERY_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("QUERY_RATE_LIMIT must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("QUERY_RATE_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ClientConfig holds configuration for the chat session engine and hubchat.
type ClientConfig struct {
	APIURL         string
	TokenDBPath    string
	CatalogPath    string
	OrganizationID string
	HistoryWindow  int
	AutosaveDelay  time.Duration
	CourtesyDelay  time.Duration
	RequestTimeout time.Duration
	LiveUpdates    bool
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:         strings.TrimRight(getEnv("API_URL", "http://localhost:8080"), "/"),
		TokenDBPath:    getEnv("HUBCHAT_TOKEN_DB", defaultTokenDBPath()),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		OrganizationID: getEnv("HUB_ORGANIZATION_ID", ""),
		HistoryWindow:  getEnvInt("CHAT_HISTORY_WINDOW", 10),
		AutosaveDelay:  getEnvDuration("CHAT_AUTOSAVE_DELAY", 2*time.Second),
		CourtesyDelay:  getEnvDuration("CHAT_COURTESY_DELAY", time.Second),
		RequestTimeout: getEnvDuration("CHAT_REQUEST_TIMEOUT", 60*time.Second),
		LiveUpdates:    getEnvBool("CHAT_LIVE_UPDATES", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required client configuration fields are set.
func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL cannot be empty")
	}
	if c.TokenDBPath == "" {
		return fmt.Errorf("HUBCHAT_TOKEN_DB cannot be empty")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("CHAT_HISTORY_WINDOW must be > 0")
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("CHAT_AUTOSAVE_DELAY must be > 0")
	}
	if c.CourtesyDelay < 0 {
		return fmt.Errorf("CHAT_COURTESY_DELAY cannot be negative")
	}
	return nil
}

func defaultTokenDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/hubchat/hubchat.db"
	}
	return "./data/hubchat.db"
}

// parseTokenBindings parses "token:org[:role],token:org[:role]".
func parseTokenBindings(raw string) ([]TokenBinding, error) {
	var bindings []TokenBinding
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("HUB_API_TOKENS entry %q must be token:organization[:role]", entry)
		}
		binding := TokenBinding{Token: parts[0], OrganizationID: parts[1]}
		if len(parts) == 3 {
			binding.Role = parts[2]
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
