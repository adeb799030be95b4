package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the wamenu service.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Menu      MenuConfig      `json:"menu"`
	Sessions  SessionsConfig  `json:"sessions"`
	Dedup     DedupConfig     `json:"dedup"`
	Outbox    OutboxConfig    `json:"outbox"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// DatabaseConfig selects the user store.
// PostgresDSN is NEVER read from config.json (secret); only from env WAMENU_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN   string `json:"-"`                        // from env WAMENU_POSTGRES_DSN only
	Mode          string `json:"mode,omitempty"`           // "standalone" (default, sqlite) or "managed" (postgres)
	SQLitePath    string `json:"sqlite_path,omitempty"`    // standalone database file (default ~/.wamenu/wamenu.db)
	MigrationsDir string `json:"migrations_dir,omitempty"` // golang-migrate source dir (default ./migrations)
}

// IsManagedMode returns true if users live in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// MenuConfig is the user-menu policy. Changes are hot-reloaded.
type MenuConfig struct {
	AllowUserMenu    *bool               `json:"allow_user_menu,omitempty"`   // default true
	AutoStart        *bool               `json:"auto_start,omitempty"`        // default true
	CommandWhitelist []string            `json:"command_whitelist,omitempty"` // default ["userrequest"]
	AdminNumbers     FlexibleStringSlice `json:"admin_numbers,omitempty"`     // chats allowed to open clientrequest sessions
	DebounceWindow   string              `json:"debounce_window,omitempty"`   // repeated-input window (default "2.5s")
	FeedbackCooldown string              `json:"feedback_cooldown,omitempty"` // repeated-input feedback spacing (default "2.5s")
}

// UserMenuEnabled reports allow_user_menu, defaulting to true.
func (m MenuConfig) UserMenuEnabled() bool { return m.AllowUserMenu == nil || *m.AllowUserMenu }

// AutoStartEnabled reports auto_start, defaulting to true.
func (m MenuConfig) AutoStartEnabled() bool { return m.AutoStart == nil || *m.AutoStart }

// SessionsConfig holds the conversation timers. Values are Go durations.
type SessionsConfig struct {
	Timeout          string `json:"timeout,omitempty"`           // inactivity expiry (default "5m")
	WarningBefore    string `json:"warning_before,omitempty"`    // warning lead time (default "2m")
	NoReplyTimeout   string `json:"no_reply_timeout,omitempty"`  // nudge delay (default "2m")
	ExpiryCooldown   string `json:"expiry_cooldown,omitempty"`   // auto-start suppression after close (default "30s")
	LockTimeout      string `json:"lock_timeout,omitempty"`      // processing lock auto-release (default "30s")
	ClientRequestTTL string `json:"clientrequest_ttl,omitempty"` // auxiliary session lifetime (default "5m")
}

// DedupConfig configures the inbound event aggregator. Millisecond values
// mirror the WA_* environment variables; 0 selects the default.
type DedupConfig struct {
	MessageTTLMs  int    `json:"message_ttl_ms,omitempty"`  // default 24h, minimum 60000
	SemanticTTLMs int    `json:"semantic_ttl_ms,omitempty"` // default 15000, range 10000-30000
	BucketMs      int    `json:"bucket_ms,omitempty"`       // default 5000, range 2000-5000
	Debug         bool   `json:"debug,omitempty"`
	SweepSchedule string `json:"sweep_schedule,omitempty"` // cron expression (default hourly)
}

// OutboxConfig configures rate-limited delivery.
type OutboxConfig struct {
	MinInterval       string `json:"min_interval,omitempty"`       // default "350ms"
	Reservoir         int    `json:"reservoir,omitempty"`          // sends per reservoir interval (default 40)
	ReservoirInterval string `json:"reservoir_interval,omitempty"` // default "1m"
	Attempts          int    `json:"attempts,omitempty"`           // default 5
	BackoffBase       string `json:"backoff_base,omitempty"`       // default "2s", doubled per attempt
	Priority          string `json:"priority,omitempty"`           // "high" (default) or "low" for menu replies
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport (local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "wamenu")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels = src.Channels
	c.Menu = src.Menu
	c.Sessions = src.Sessions
	c.Dedup = src.Dedup
	c.Outbox = src.Outbox
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}

// MenuSnapshot returns the menu section under the read lock.
func (c *Config) MenuSnapshot() MenuConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Menu
}

// Duration parses s as a Go duration, returning def when s is empty or
// invalid.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
