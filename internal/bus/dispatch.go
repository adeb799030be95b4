package bus

import (
	"context"
	"log/slog"
	"sync"
)

// ChatDispatcher runs a handler for each message, one at a time per chat and
// in arrival order, with different chats running concurrently.
type ChatDispatcher struct {
	handle MessageHandler

	mu     sync.Mutex
	queues map[string][]InboundMessage
	wg     sync.WaitGroup
}

// NewChatDispatcher creates a dispatcher calling handle.
func NewChatDispatcher(handle MessageHandler) *ChatDispatcher {
	return &ChatDispatcher{handle: handle, queues: make(map[string][]InboundMessage)}
}

// Dispatch queues msg behind earlier messages from the same chat.
func (d *ChatDispatcher) Dispatch(ctx context.Context, msg InboundMessage) {
	d.mu.Lock()
	q, active := d.queues[msg.ChatID]
	d.queues[msg.ChatID] = append(q, msg)
	d.mu.Unlock()

	if !active {
		d.wg.Add(1)
		go d.drain(ctx, msg.ChatID)
	}
}

// drain owns chatID's queue until it is empty; the map entry exists exactly
// while a drainer runs.
func (d *ChatDispatcher) drain(ctx context.Context, chatID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[chatID]
		if len(q) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		msg := q[0]
		d.queues[chatID] = q[1:]
		d.mu.Unlock()

		if err := d.handle(ctx, msg); err != nil {
			slog.Error("inbound handler failed", "channel", msg.Channel, "chat_id", chatID,
				"message_id", msg.MessageID, "error", err)
		}
	}
}

// Active returns the number of chats with queued or running work.
func (d *ChatDispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every queued message has been handled.
func (d *ChatDispatcher) Wait() { d.wg.Wait() }
