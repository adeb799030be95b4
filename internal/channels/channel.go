// Package channels connects chat transports to the menu via the message bus.
// A channel publishes inbound messages on the bus and delivers outbound text
// handed to it by the outbox.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
)

// DMPolicy controls how DMs from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist" // Only whitelisted senders
	DMPolicyOpen      DMPolicy = "open"      // Accept all
	DMPolicyDisabled  DMPolicy = "disabled"  // Reject all DMs
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"      // Accept all groups
	GroupPolicyAllowlist GroupPolicy = "allowlist" // Only whitelisted groups
	GroupPolicyDisabled  GroupPolicy = "disabled"  // No group messages
)

// TypeWhatsApp is the registered name of the WhatsApp bridge channel.
const TypeWhatsApp = "whatsapp"

// Peer kinds carried on bus.InboundMessage.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "whatsapp").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.InboundRouter
	running   atomic.Bool
	allowList []string
	limiter   *SenderRateLimiter
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, msgBus bus.InboundRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		limiter:   NewSenderRateLimiter(),
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// addressDigits reduces "628123@c.us", "628123:4@s.whatsapp.net" or "+62 812-3"
// to its digits.
func addressDigits(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, id)
}

// IsAllowed checks if a sender is permitted by the allowlist. Entries match
// the raw sender id or its digits, so "628123" allows "628123@c.us".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	digits := addressDigits(senderID)
	for _, allowed := range c.allowList {
		if senderID == allowed {
			return true
		}
		if d := addressDigits(allowed); d != "" && d == digits {
			return true
		}
	}
	return false
}

// CheckPolicy evaluates DM/Group policy for a message.
// Returns true if the message should be accepted, false if rejected.
// policy: "open" (default), "allowlist", "disabled".
func (c *BaseChannel) CheckPolicy(policy, senderID string) bool {
	switch policy {
	case "disabled":
		return false
	case "allowlist":
		return c.IsAllowed(senderID)
	default: // "open"
		return true
	}
}

// HandleMessage creates an InboundMessage and publishes it to the bus.
// Senders over the per-minute budget are dropped.
func (c *BaseChannel) HandleMessage(senderID, chatID, messageID, content string, metadata map[string]string, peerKind string) {
	if !c.IsAllowed(senderID) {
		return
	}
	if !c.limiter.Allow(chatID) {
		slog.Warn("inbound rate limit exceeded, dropping message", "channel", c.name, "chat_id", chatID)
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		MessageID: messageID,
		Content:   content,
		PeerKind:  peerKind,
		Metadata:  metadata,
	})
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
