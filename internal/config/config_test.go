package config

import (
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", true, nil
	}
	return s, true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, isInt := v.(int)
	if !isInt {
		return 0, true, nil
	}
	return i, true, nil
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }

func (m mapBackend) SetInt(key string, val int) error { m[key] = val; return nil }

func (m mapBackend) Delete(key string) error { delete(m, key); return nil }

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BREAD_API_KEY", "test-key")

	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "https://api.bread.com.ai" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Poll.MaxAttempts != 120 {
		t.Errorf("Poll.MaxAttempts = %d, want 120", cfg.Poll.MaxAttempts)
	}
	if cfg.Poll.Interval != "5s" {
		t.Errorf("Poll.Interval = %q, want 5s", cfg.Poll.Interval)
	}
	if cfg.Chat.Temperature != 0.7 {
		t.Errorf("Chat.Temperature = %v, want 0.7", cfg.Chat.Temperature)
	}
	if cfg.API.Key != "test-key" {
		t.Errorf("API.Key = %q", cfg.API.Key)
	}
}

func TestLoad_MissingAPIKeyIsFatal(t *testing.T) {
	t.Setenv("BREAD_API_KEY", "")

	if _, err := loadWith(mapBackend{}); err == nil {
		t.Fatal("expected error when BREAD_API_KEY is unset")
	}
}

func TestLoad_BackendValues(t *testing.T) {
	t.Setenv("BREAD_API_KEY", "test-key")

	b := mapBackend{
		"api.base_url":      "http://127.0.0.1:9090",
		"poll.max_attempts": 5,
		"chat.temperature":  "1.0",
	}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://127.0.0.1:9090" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Poll.MaxAttempts != 5 {
		t.Errorf("Poll.MaxAttempts = %d, want 5", cfg.Poll.MaxAttempts)
	}
	if cfg.Chat.Temperature != 1.0 {
		t.Errorf("Chat.Temperature = %v, want 1.0", cfg.Chat.Temperature)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	t.Setenv("BREAD_API_KEY", "test-key")
	t.Setenv("BAKECTL_POLL_MAX_ATTEMPTS", "30")
	t.Setenv("BAKECTL_POLL_INTERVAL", "250ms")

	b := mapBackend{"poll.max_attempts": 5}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Poll.MaxAttempts != 30 {
		t.Errorf("Poll.MaxAttempts = %d, want env override 30", cfg.Poll.MaxAttempts)
	}
	if cfg.Poll.Interval != "250ms" {
		t.Errorf("Poll.Interval = %q, want 250ms", cfg.Poll.Interval)
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}

	if err := setKey(b, "chat.model", "johndoe/yoda_repo/yoda_bake/21"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b["chat.model"] != "johndoe/yoda_repo/yoda_bake/21" {
		t.Errorf("chat.model = %v", b["chat.model"])
	}

	if err := setKey(b, "poll.max_attempts", "nope"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}
