package bus

import (
	"context"
	"log/slog"
)

// DefaultBufferSize is the inbound queue capacity used by New.
const DefaultBufferSize = 256

// MessageBus is a buffered in-process queue from channels to the consumer.
type MessageBus struct {
	inbound chan InboundMessage
}

// New creates a bus with the default buffer.
func New() *MessageBus {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer creates a bus holding up to size pending messages.
func NewWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &MessageBus{inbound: make(chan InboundMessage, size)}
}

// PublishInbound enqueues msg. When the buffer is full the message is
// dropped and logged rather than blocking the channel's read loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound bus full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID, "message_id", msg.MessageID)
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Pending returns the number of queued messages.
func (b *MessageBus) Pending() int { return len(b.inbound) }
