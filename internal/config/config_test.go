package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Menu.UserMenuEnabled() || !cfg.Menu.AutoStartEnabled() {
		t.Error("menu should default to enabled")
	}
	if got := cfg.Menu.CommandWhitelist; len(got) != 1 || got[0] != "userrequest" {
		t.Errorf("CommandWhitelist = %v, want [userrequest]", got)
	}
	if cfg.Database.Mode != "standalone" {
		t.Errorf("Database.Mode = %q, want standalone", cfg.Database.Mode)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	writeFile(t, path, `{
		// comments and trailing commas are fine
		menu: {
			allow_user_menu: false,
			admin_numbers: [628111222333, "628999"],
		},
		sessions: { timeout: "10m" },
		outbox: { reservoir: 20 },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Menu.UserMenuEnabled() {
		t.Error("allow_user_menu = false was not applied")
	}
	want := []string{"628111222333", "628999"}
	if len(cfg.Menu.AdminNumbers) != 2 || cfg.Menu.AdminNumbers[0] != want[0] || cfg.Menu.AdminNumbers[1] != want[1] {
		t.Errorf("AdminNumbers = %v, want %v", cfg.Menu.AdminNumbers, want)
	}
	if got := Duration(cfg.Sessions.Timeout, time.Minute); got != 10*time.Minute {
		t.Errorf("Sessions.Timeout = %v, want 10m", got)
	}
	if cfg.Outbox.Reservoir != 20 {
		t.Errorf("Outbox.Reservoir = %d, want 20", cfg.Outbox.Reservoir)
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	writeFile(t, path, `{ menu: `)
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed input")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAMENU_POSTGRES_DSN", "postgres://u:p@localhost/wamenu")
	t.Setenv("WAMENU_WHATSAPP_BRIDGE_URL", "ws://bridge:3001")
	t.Setenv("WA_SEMANTIC_DEDUP_TTL_MS", "20000")
	t.Setenv("WA_SEMANTIC_DEDUP_BUCKET_MS", "abc")
	t.Setenv("WA_DEBUG_LOGGING", "true")
	t.Setenv("WA_PROCESSING_LOCK_TIMEOUT_MS", "1500")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsManagedMode() {
		t.Error("a Postgres DSN should select managed mode")
	}
	if !cfg.Channels.WhatsApp.Enabled {
		t.Error("bridge url should enable the whatsapp channel")
	}
	if cfg.Dedup.SemanticTTLMs != 20000 {
		t.Errorf("SemanticTTLMs = %d, want 20000", cfg.Dedup.SemanticTTLMs)
	}
	if cfg.Dedup.BucketMs != -1 {
		t.Errorf("BucketMs = %d, want -1 for unparsable input", cfg.Dedup.BucketMs)
	}
	if !cfg.Dedup.Debug {
		t.Error("WA_DEBUG_LOGGING=true not applied")
	}
	if got := Duration(cfg.Sessions.LockTimeout, 0); got != 1500*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 1.5s", got)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"350ms", 350 * time.Millisecond},
		{"bogus", time.Second},
		{"-5s", time.Second},
	}
	for _, tt := range tests {
		if got := Duration(tt.in, time.Second); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{ menu: { auto_start: true } }`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { changed <- c })

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{ menu: { auto_start: false } }`)

	select {
	case cfg := <-changed:
		if cfg.Menu.AutoStartEnabled() {
			t.Error("reloaded config should have auto_start disabled")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}
