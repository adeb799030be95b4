package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
	"github.com/nextlevelbuilder/wamenu/internal/config"
)

// fakeBridge accepts one connection, writes the given frames and records
// frames sent by the client.
type fakeBridge struct {
	srv      *httptest.Server
	received chan frame
}

func newFakeBridge(t *testing.T, frames ...frame) *fakeBridge {
	t.Helper()
	b := &fakeBridge{received: make(chan frame, 8)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			data, _ := json.Marshal(f)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) == nil {
				b.received <- f
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBridge) url() string { return "ws" + strings.TrimPrefix(b.srv.URL, "http") }

func startChannel(t *testing.T, cfg config.WhatsAppConfig, msgBus *bus.MessageBus) *Channel {
	t.Helper()
	ch, err := New(cfg, msgBus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { ch.Stop(context.Background()) })
	return ch
}

func TestNewRequiresBridgeURL(t *testing.T) {
	if _, err := New(config.WhatsAppConfig{}, bus.New()); err == nil {
		t.Error("New without bridge_url should fail")
	}
}

func TestInboundFiltering(t *testing.T) {
	bridge := newFakeBridge(t,
		frame{Type: "message", From: "628999@c.us", Content: "mine", ID: "M0", FromMe: true},
		frame{Type: "message", From: "628999@c.us", Chat: "status@broadcast", Content: "story", ID: "M1"},
		frame{Type: "message", From: "628999@c.us", Chat: "1203@g.us", Content: "group", ID: "M2"},
		frame{Type: "message", From: "628999@c.us", Content: "   ", ID: "M3"},
		frame{Type: "status", Status: "ready"},
		frame{Type: "message", From: "628111@c.us", Content: "halo", ID: "M4", FromName: "Budi", Source: "wwebjs"},
	)
	msgBus := bus.New()
	startChannel(t, config.WhatsAppConfig{BridgeURL: bridge.url()}, msgBus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message")
	}
	if msg.MessageID != "M4" || msg.ChatID != "628111@c.us" || msg.Content != "halo" {
		t.Errorf("inbound = %+v, want message M4", msg)
	}
	if msg.Metadata["source"] != "wwebjs" || msg.Metadata["user_name"] != "Budi" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
	if n := msgBus.Pending(); n != 0 {
		t.Errorf("Pending = %d, want 0", n)
	}
}

func TestSendWritesFrame(t *testing.T) {
	bridge := newFakeBridge(t)
	ch := startChannel(t, config.WhatsAppConfig{BridgeURL: bridge.url()}, bus.New())

	if !ch.Connected() {
		t.Fatal("channel did not connect")
	}
	if err := ch.Send(context.Background(), bus.OutboundMessage{ChatID: "628111@c.us", Content: "halo"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-bridge.received:
		if f.Type != "message" || f.To != "628111@c.us" || f.Content != "halo" {
			t.Errorf("bridge received %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge received nothing")
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	ch, err := New(config.WhatsAppConfig{BridgeURL: "ws://127.0.0.1:1"}, bus.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(context.Background(), bus.OutboundMessage{ChatID: "1", Content: "x"}); err == nil {
		t.Error("Send without a connection should fail")
	}
}

func TestSendCanceledContext(t *testing.T) {
	bridge := newFakeBridge(t)
	ch := startChannel(t, config.WhatsAppConfig{BridgeURL: bridge.url()}, bus.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ch.Send(ctx, bus.OutboundMessage{ChatID: "628111@c.us", Content: "halo"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send(canceled ctx) = %v, want context.Canceled", err)
	}
}

func TestWriteDeadline(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	if got, want := writeDeadline(context.Background(), now), now.Add(writeTimeout); !got.Equal(want) {
		t.Errorf("writeDeadline(no deadline) = %v, want %v", got, want)
	}

	soon := now.Add(time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), soon)
	defer cancel()
	if got := writeDeadline(ctx, now); !got.Equal(soon) {
		t.Errorf("writeDeadline(ctx deadline) = %v, want %v", got, soon)
	}

	late, cancelLate := context.WithDeadline(context.Background(), now.Add(time.Hour))
	defer cancelLate()
	if got, want := writeDeadline(late, now), now.Add(writeTimeout); !got.Equal(want) {
		t.Errorf("writeDeadline(late deadline) = %v, want %v", got, want)
	}
}
