package telegram

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseRuntimeConfig(t *testing.T) {
	t.Parallel()

	_, err := parseRuntimeConfig([]byte(`{"app_id":1,"app_hash":"hash","bot_token":"t","publish_timeout":"bad"}`))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := parseRuntimeConfig([]byte(`{"app_id":1,"app_hash":"hash"}`)); err == nil {
		t.Fatal("expected missing bot_token error")
	}
	if _, err := parseRuntimeConfig(nil); err == nil {
		t.Fatal("expected missing config error")
	}

	cfg, err := parseRuntimeConfig([]byte(`{"app_id":1,"app_hash":"hash","bot_token":"123:abc","publish_timeout":"5s"}`))
	if err != nil {
		t.Fatalf("parse runtime config failed: %v", err)
	}
	if cfg.appID != 1 {
		t.Fatalf("app id = %d, want 1", cfg.appID)
	}
	if cfg.botToken != "123:abc" {
		t.Fatalf("bot token = %q, want 123:abc", cfg.botToken)
	}
	if cfg.publishTimeout != 5*time.Second {
		t.Fatalf("publish timeout = %s, want 5s", cfg.publishTimeout)
	}
	if cfg.sessionFile != defaultRuntimeSessionFile {
		t.Fatalf("session file = %q, want default", cfg.sessionFile)
	}
	if cfg.updateBuffer != 256 {
		t.Fatalf("update buffer = %d, want 256", cfg.updateBuffer)
	}
}

func TestNewGotdSessionStorage(t *testing.T) {
	t.Parallel()

	sessionPath := filepath.Join(t.TempDir(), "nested", "telegram", "session.json")
	storage, err := newGotdSessionStorage(sessionPath)
	if err != nil {
		t.Fatalf("new gotd session storage failed: %v", err)
	}
	if !filepath.IsAbs(storage.Path) {
		t.Fatalf("session path = %q, want absolute", storage.Path)
	}
	if _, err := newGotdSessionStorage("   "); err == nil {
		t.Fatal("expected empty path error")
	}
}
