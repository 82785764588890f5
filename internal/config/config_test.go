package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HUB_API_TOKENS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("Expected 1m rate window, got %v", cfg.RateLimit.WindowDuration)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadParsesTokenBindings(t *testing.T) {
	t.Setenv("HUB_API_TOKENS", "tok-a:org-1:admin, tok-b:org-2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.BootstrapTokens) != 2 {
		t.Fatalf("Expected 2 bindings, got %d", len(cfg.BootstrapTokens))
	}
	if cfg.BootstrapTokens[0].Role != "admin" || cfg.BootstrapTokens[1].OrganizationID != "org-2" {
		t.Errorf("Unexpected bindings: %+v", cfg.BootstrapTokens)
	}
}

func TestLoadRejectsMalformedTokens(t *testing.T) {
	t.Setenv("HUB_API_TOKENS", "just-a-token")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for malformed HUB_API_TOKENS")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("API_URL", "http://hub.local/")
	t.Setenv("HUBCHAT_TOKEN_DB", "/tmp/hubchat.db")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.APIURL != "http://hub.local" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if cfg.AutosaveDelay != 2*time.Second || cfg.CourtesyDelay != time.Second || cfg.HistoryWindow != 10 {
		t.Errorf("Unexpected client defaults: %+v", cfg)
	}
}

func TestLoadClientRejectsBadWindow(t *testing.T) {
	t.Setenv("HUBCHAT_TOKEN_DB", "/tmp/hubchat.db")
	t.Setenv("CHAT_HISTORY_WINDOW", "0")
	if _, err := LoadClient(); err == nil {
		t.Fatal("Expected error for zero history window")
	}
}
