package sessions

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

const (
	// DefaultExpiryCooldown suppresses auto-start right after a session ends.
	DefaultExpiryCooldown = 30 * time.Second
	cooldownCapacity      = 10_000
)

// Cooldowns tracks per-chat windows during which a new session must not be
// auto-started. Entries are independent of session existence and miss once
// the window has passed.
type Cooldowns struct {
	cache otter.Cache[string, struct{}]
}

// NewCooldowns creates a cooldown tracker with the given window.
func NewCooldowns(window time.Duration) (*Cooldowns, error) {
	if window <= 0 {
		window = DefaultExpiryCooldown
	}
	c, err := otter.MustBuilder[string, struct{}](cooldownCapacity).WithTTL(window).Build()
	if err != nil {
		return nil, fmt.Errorf("build cooldown cache: %w", err)
	}
	return &Cooldowns{cache: c}, nil
}

// Start opens a cooldown window for chatID, restarting any open one.
func (c *Cooldowns) Start(chatID string) {
	c.cache.Set(chatID, struct{}{})
}

// Active reports whether chatID is inside its cooldown window.
func (c *Cooldowns) Active(chatID string) bool {
	_, ok := c.cache.Get(chatID)
	return ok
}

// Len returns the number of tracked windows. Elapsed entries may linger
// until the cache's background cleanup drops them.
func (c *Cooldowns) Len() int { return c.cache.Size() }

// Close stops the cache's background maintenance.
func (c *Cooldowns) Close() { c.cache.Close() }
