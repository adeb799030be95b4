package bus

import "context"

// InboundMessage represents a message received from a channel.
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	// MessageID is the transport's message id; empty when the bridge omits it.
	MessageID string            `json:"message_id,omitempty"`
	Content   string            `json:"content"`
	PeerKind  string            `json:"peer_kind,omitempty"` // "direct" or "group"
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// InboundRouter abstracts inbound message delivery between channels and the
// menu consumer.
type InboundRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
