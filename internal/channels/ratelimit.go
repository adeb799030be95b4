package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from senders rotating ids.
	maxTrackedKeys = 4096

	// rateLimitWindow is the fixed window duration for rate counting.
	rateLimitWindow = 60 * time.Second

	// rateLimitMaxHits is the max inbound messages per chat within a window.
	rateLimitMaxHits = 30
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// SenderRateLimiter bounds inbound messages per chat and the number of
// tracked chats. Safe for concurrent use.
type SenderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	window  time.Duration
	maxHits int
	now     func() time.Time
}

// NewSenderRateLimiter creates a limiter allowing 30 messages per chat per minute.
func NewSenderRateLimiter() *SenderRateLimiter {
	return &SenderRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		window:  rateLimitWindow,
		maxHits: rateLimitMaxHits,
		now:     time.Now,
	}
}

// Allow returns true if the key is within rate limits.
// Automatically prunes stale entries and enforces a hard cap on tracked keys.
func (r *SenderRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Prune stale entries when approaching the cap
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.maxHits
}
