// Package whatsapp is a WebSocket client for a WhatsApp bridge process
// (whatsapp-web.js or Baileys based). The bridge speaks the WhatsApp protocol;
// this channel exchanges JSON frames with it.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
	"github.com/nextlevelbuilder/wamenu/internal/channels"
	"github.com/nextlevelbuilder/wamenu/internal/config"
)

const (
	channelName  = channels.TypeWhatsApp
	writeTimeout = 10 * time.Second
	maxBackoff   = 30 * time.Second
)

// frame is the bridge wire format, both directions.
//
//	in:  {"type":"message","from":"...","chat":"...","content":"...","id":"...","from_name":"...","from_me":false,"source":"wwebjs"}
//	out: {"type":"message","to":"...","content":"..."}
type frame struct {
	Type     string `json:"type"`
	From     string `json:"from,omitempty"`
	Chat     string `json:"chat,omitempty"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content"`
	ID       string `json:"id,omitempty"`
	FromName string `json:"from_name,omitempty"`
	FromMe   bool   `json:"from_me,omitempty"`
	Source   string `json:"source,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Channel connects to a WhatsApp bridge via WebSocket.
type Channel struct {
	*channels.BaseChannel
	conn      *websocket.Conn
	config    config.WhatsAppConfig
	mu        sync.Mutex
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, msgBus bus.InboundRouter) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	base := channels.NewBaseChannel(channelName, msgBus, cfg.AllowFrom)

	return &Channel{
		BaseChannel: base,
		config:      cfg,
	}, nil
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Don't fail hard, the reconnect loop will keep trying
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.SetRunning(false)

	return nil
}

// Connected reports whether the bridge socket is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send delivers an outbound message to the WhatsApp bridge.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	data, err := json.Marshal(frame{Type: "message", To: msg.ChatID, Content: msg.Content})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	if err := c.conn.SetWriteDeadline(writeDeadline(ctx, time.Now())); err != nil {
		return fmt.Errorf("set whatsapp write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}

	return nil
}

// writeDeadline is writeTimeout from now, or the context deadline when sooner.
func writeDeadline(ctx context.Context, now time.Time) time.Time {
	d := now.Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(c.ctx, c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

// listenLoop reads messages from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			// Not connected, attempt reconnect with backoff
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = time.Second // reset on success
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()

			continue
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			slog.Warn("invalid whatsapp message JSON", "error", err)
			continue
		}

		switch f.Type {
		case "message":
			c.handleIncomingMessage(f)
		case "status":
			slog.Info("whatsapp bridge status", "status", f.Status)
		}
	}
}

// handleIncomingMessage filters a bridge frame and publishes it.
func (c *Channel) handleIncomingMessage(f frame) {
	senderID := f.From
	if senderID == "" || f.FromMe {
		return
	}

	chatID := f.Chat
	if chatID == "" {
		chatID = senderID
	}
	if chatID == "status@broadcast" {
		return
	}

	// WhatsApp groups have chatID ending in "@g.us"
	peerKind := channels.PeerDirect
	policy := c.config.DMPolicy
	if strings.HasSuffix(chatID, "@g.us") {
		peerKind = channels.PeerGroup
		policy = c.config.GroupPolicy
		if policy == "" {
			policy = string(channels.GroupPolicyDisabled)
		}
	}

	if !c.CheckPolicy(policy, senderID) {
		slog.Debug("whatsapp message rejected by policy", "sender_id", senderID, "peer_kind", peerKind)
		return
	}

	if strings.TrimSpace(f.Content) == "" {
		slog.Debug("whatsapp message without text ignored", "chat_id", chatID, "message_id", f.ID)
		return
	}

	metadata := make(map[string]string)
	if f.FromName != "" {
		metadata["user_name"] = f.FromName
	}
	source := f.Source
	if source == "" {
		source = "bridge"
	}
	metadata["source"] = source

	slog.Debug("whatsapp message received",
		"sender_id", senderID,
		"chat_id", chatID,
		"message_id", f.ID,
		"preview", channels.Truncate(f.Content, 50),
	)

	c.HandleMessage(senderID, chatID, f.ID, f.Content, metadata, peerKind)
}
