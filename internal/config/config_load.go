package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				DMPolicy:    "open",
				GroupPolicy: "disabled",
			},
		},
		Menu: MenuConfig{
			CommandWhitelist: []string{"userrequest"},
		},
		Dedup: DedupConfig{
			SweepSchedule: "0 * * * *",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18791,
		},
		Database: DatabaseConfig{
			Mode:          "standalone",
			SQLitePath:    "~/.wamenu/wamenu.db",
			MigrationsDir: "./migrations",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "wamenu",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			} else {
				// out-of-range sentinel; the aggregator warns and falls back
				*dst = -1
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(strings.TrimSpace(v), "true") || v == "1"
		}
	}

	envStr("WAMENU_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("WAMENU_MODE", &c.Database.Mode)
	envStr("WAMENU_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("WAMENU_MIGRATIONS_DIR", &c.Database.MigrationsDir)
	envStr("WAMENU_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("WAMENU_HOST", &c.Gateway.Host)
	if v := os.Getenv("WAMENU_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}

	// legacy tunables kept under their original names
	envInt("WA_MESSAGE_DEDUP_TTL_MS", &c.Dedup.MessageTTLMs)
	envInt("WA_SEMANTIC_DEDUP_TTL_MS", &c.Dedup.SemanticTTLMs)
	envInt("WA_SEMANTIC_DEDUP_BUCKET_MS", &c.Dedup.BucketMs)
	envBool("WA_DEBUG_LOGGING", &c.Dedup.Debug)
	if v := os.Getenv("WA_PROCESSING_LOCK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Sessions.LockTimeout = strconv.Itoa(ms) + "ms"
		}
	}

	// Telemetry
	envStr("WAMENU_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("WAMENU_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("WAMENU_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("WAMENU_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("WAMENU_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	// Auto-enable the channel if a bridge is configured via env
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}
	if c.Database.PostgresDSN != "" && os.Getenv("WAMENU_MODE") == "" {
		c.Database.Mode = "managed"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// SQLitePath returns the expanded standalone database path.
func (c *Config) SQLitePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Database.SQLitePath)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
