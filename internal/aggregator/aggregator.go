// Package aggregator filters duplicate inbound WhatsApp events before they
// reach the menu. Two independent TTL maps are kept: one keyed by transport
// message id, one by a semantic fingerprint of chat, normalized body, menu
// step and a coarse time bucket.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
)

const (
	DefaultMessageTTL  = 24 * time.Hour
	DefaultSemanticTTL = 15 * time.Second
	DefaultBucket      = 5 * time.Second

	minMessageTTL  = time.Minute
	minSemanticTTL = 10 * time.Second
	maxSemanticTTL = 30 * time.Second
	minBucket      = 2 * time.Second
	maxBucket      = 5 * time.Second

	// DefaultStep is the fingerprint step for chats without a session.
	DefaultStep = "default"
)

// Config holds the dedup windows. Zero values select defaults.
type Config struct {
	MessageTTL  time.Duration
	SemanticTTL time.Duration
	Bucket      time.Duration
	// Debug logs every accept/drop decision.
	Debug bool
}

// normalized replaces out-of-range settings with defaults, logging a warning
// for each one.
func (c Config) normalized() Config {
	check := func(name string, v, def, lo, hi time.Duration) time.Duration {
		if v == 0 {
			return def
		}
		if v < lo || (hi > 0 && v > hi) {
			bounds := fmt.Sprintf(">= %dms", lo.Milliseconds())
			if hi > 0 {
				bounds = fmt.Sprintf("between %dms and %dms", lo.Milliseconds(), hi.Milliseconds())
			}
			slog.Warn("invalid dedup setting, using default",
				"setting", name, "value_ms", v.Milliseconds(), "default_ms", def.Milliseconds(), "must_be", bounds)
			return def
		}
		return v
	}
	c.MessageTTL = check("WA_MESSAGE_DEDUP_TTL_MS", c.MessageTTL, DefaultMessageTTL, minMessageTTL, 0)
	c.SemanticTTL = check("WA_SEMANTIC_DEDUP_TTL_MS", c.SemanticTTL, DefaultSemanticTTL, minSemanticTTL, maxSemanticTTL)
	c.Bucket = check("WA_SEMANTIC_DEDUP_BUCKET_MS", c.Bucket, DefaultBucket, minBucket, maxBucket)
	return c
}

// Options tune a single HandleIncoming call.
type Options struct {
	// Step is the chat's menu step at receipt; DefaultStep when empty.
	Step string
	// AllowReplay skips the message-id check. Semantic dedup still applies.
	AllowReplay bool
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	seen     map[string]time.Time
	semantic map[string]time.Time
}

// New creates an aggregator; invalid settings fall back to defaults.
func New(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:      cfg.normalized(),
		now:      time.Now,
		seen:     make(map[string]time.Time),
		semantic: make(map[string]time.Time),
	}
}

// Config returns the effective settings.
func (a *Aggregator) Config() Config { return a.cfg }

// NormalizeBody lowercases, collapses whitespace and trims.
func NormalizeBody(body string) string {
	return strings.ToLower(strings.Join(strings.Fields(body), " "))
}

func (a *Aggregator) fingerprint(jid, body, step string, at time.Time) string {
	normalized := NormalizeBody(body)
	if normalized == "" {
		return ""
	}
	if step == "" {
		step = DefaultStep
	}
	bucket := at.UnixMilli() / a.cfg.Bucket.Milliseconds()
	return fmt.Sprintf("%s:%s:%s:%d", jid, normalized, step, bucket)
}

// Accept decides whether msg is new and, if so, records it. Messages
// without a chat or message id are always accepted.
func (a *Aggregator) Accept(source string, msg bus.InboundMessage, opts Options) bool {
	jid, id := msg.ChatID, msg.MessageID
	if jid == "" || id == "" {
		slog.Warn("wa message missing identifier", "source", source, "chat_id", jid, "message_id", id)
		return true
	}

	key := jid + ":" + id
	at := a.now()
	fp := a.fingerprint(jid, msg.Content, opts.Step, at)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !opts.AllowReplay {
		if ts, ok := a.seen[key]; ok && at.Sub(ts) <= a.cfg.MessageTTL {
			a.debug("duplicate message skipped", "source", source, "key", key)
			return false
		}
	}
	if fp != "" {
		if ts, ok := a.semantic[fp]; ok && at.Sub(ts) <= a.cfg.SemanticTTL {
			a.debug("semantic duplicate skipped", "source", source, "fingerprint", fp)
			return false
		}
	}

	a.seen[key] = at
	if fp != "" {
		a.semantic[fp] = at
	}
	a.debug("processing message", "source", source, "key", key, "allow_replay", opts.AllowReplay)
	return true
}

// HandleIncoming runs handler for msg unless it is a duplicate. Handler
// errors are logged. It reports whether handler ran.
func (a *Aggregator) HandleIncoming(ctx context.Context, source string, msg bus.InboundMessage, opts Options,
	handler func(context.Context, bus.InboundMessage) error) bool {
	if !a.Accept(source, msg, opts) {
		return false
	}
	if err := handler(ctx, msg); err != nil {
		slog.Error("wa handler error", "source", source, "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	}
	return true
}

func (a *Aggregator) debug(msg string, args ...any) {
	if a.cfg.Debug {
		slog.Info("wa event aggregator: "+msg, args...)
	}
}

// Sweep drops entries older than their TTL and returns how many went.
func (a *Aggregator) Sweep() int {
	at := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for k, ts := range a.seen {
		if at.Sub(ts) > a.cfg.MessageTTL {
			delete(a.seen, k)
			removed++
		}
	}
	for k, ts := range a.semantic {
		if at.Sub(ts) > a.cfg.SemanticTTL {
			delete(a.semantic, k)
			removed++
		}
	}
	if removed > 0 {
		a.debug("cleaned up expired entries", "removed", removed, "cache_size", len(a.seen))
	}
	return removed
}

// IDStats describes the message-id map.
type IDStats struct {
	Size             int     `json:"size"`
	TTLMs            int64   `json:"ttlMs"`
	OldestEntryAgeMs int64   `json:"oldestEntryAgeMs"`
	TTLHours         float64 `json:"ttlHours"`
}

// SemanticStats describes the fingerprint map.
type SemanticStats struct {
	Size             int   `json:"size"`
	TTLMs            int64 `json:"ttlMs"`
	BucketMs         int64 `json:"bucketMs"`
	OldestEntryAgeMs int64 `json:"oldestEntryAgeMs"`
}

// Stats is the health-endpoint view of both maps.
type Stats struct {
	IDDedup       IDStats       `json:"idDedup"`
	SemanticDedup SemanticStats `json:"semanticDedup"`
}

func oldestAge(m map[string]time.Time, at time.Time) int64 {
	oldest := at
	for _, ts := range m {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return at.Sub(oldest).Milliseconds()
}

// Stats reports map sizes, settings and the age of the oldest entry.
func (a *Aggregator) Stats() Stats {
	at := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		IDDedup: IDStats{
			Size:             len(a.seen),
			TTLMs:            a.cfg.MessageTTL.Milliseconds(),
			OldestEntryAgeMs: oldestAge(a.seen, at),
			TTLHours:         a.cfg.MessageTTL.Hours(),
		},
		SemanticDedup: SemanticStats{
			Size:             len(a.semantic),
			TTLMs:            a.cfg.SemanticTTL.Milliseconds(),
			BucketMs:         a.cfg.Bucket.Milliseconds(),
			OldestEntryAgeMs: oldestAge(a.semantic, at),
		},
	}
}
