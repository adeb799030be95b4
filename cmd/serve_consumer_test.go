package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/aggregator"
	"github.com/nextlevelbuilder/wamenu/internal/bus"
	"github.com/nextlevelbuilder/wamenu/internal/channels"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
)

func TestConsumeInbound(t *testing.T) {
	msgBus := bus.New()
	sess := sessions.NewManager()
	agg := aggregator.New(aggregator.Config{})

	var mu sync.Mutex
	var handled []string
	d := bus.NewChatDispatcher(func(_ context.Context, msg bus.InboundMessage) error {
		mu.Lock()
		handled = append(handled, msg.MessageID)
		mu.Unlock()
		return nil
	})

	chat := "628111@c.us"
	for _, m := range []bus.InboundMessage{
		{Channel: "whatsapp", ChatID: chat, MessageID: "m1", Content: "userrequest", PeerKind: channels.PeerDirect},
		{Channel: "whatsapp", ChatID: chat, MessageID: "m1", Content: "userrequest", PeerKind: channels.PeerDirect},
		{Channel: "whatsapp", ChatID: "1203@g.us", MessageID: "g1", Content: "halo", PeerKind: channels.PeerGroup},
		{Channel: "whatsapp", ChatID: chat, MessageID: "m2", Content: "1", PeerKind: channels.PeerDirect},
	} {
		msgBus.PublishInbound(m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumeInbound(ctx, msgBus, sess, agg, d) }()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(handled)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handled %d messages, want 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consumeInbound returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 || handled[0] != "m1" || handled[1] != "m2" {
		t.Errorf("handled = %v, want [m1 m2]", handled)
	}
}
