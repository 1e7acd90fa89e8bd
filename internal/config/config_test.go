package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.BaseURL != "http://localhost:3000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MessagePageSize != 20 || cfg.ConversationPageSize != 10 {
		t.Errorf("page sizes = %d/%d, want 20/10", cfg.MessagePageSize, cfg.ConversationPageSize)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.TypingIdle != time.Second {
		t.Errorf("TypingIdle = %v", cfg.TypingIdle)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	data := []byte("base_url: https://chat.example.com/\nsocket_url: wss://chat.example.com/ws\nmessage_page_size: 50\ntyping_idle_ms: 1500\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	if cfg.BaseURL != "https://chat.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.SocketURL != "wss://chat.example.com/ws" {
		t.Errorf("SocketURL = %q", cfg.SocketURL)
	}
	if cfg.MessagePageSize != 50 {
		t.Errorf("MessagePageSize = %d, want 50", cfg.MessagePageSize)
	}
	if cfg.TypingIdle != 1500*time.Millisecond {
		t.Errorf("TypingIdle = %v, want 1.5s", cfg.TypingIdle)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte("base_url: https://file.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("API_BASE_URL", "https://env.example.com")
	t.Setenv("MESSAGE_PAGE_SIZE", "30")

	cfg := Load()
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, env must win over file", cfg.BaseURL)
	}
	if cfg.MessagePageSize != 30 {
		t.Errorf("MessagePageSize = %d, want 30", cfg.MessagePageSize)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("MESSAGE_PAGE_SIZE", "not-a-number")
	t.Setenv("REQUEST_TIMEOUT", "-5")

	cfg := Load()
	if cfg.MessagePageSize != 20 {
		t.Errorf("MessagePageSize = %d, want default 20", cfg.MessagePageSize)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want floor 10s", cfg.RequestTimeout)
	}
}
