package channels

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/bus"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name   string
		allow  []string
		sender string
		want   bool
	}{
		{"empty list", nil, "628111@c.us", true},
		{"exact", []string{"628111@c.us"}, "628111@c.us", true},
		{"digits match jid", []string{"628111"}, "628111@c.us", true},
		{"device suffix", []string{"+62 811 1"}, "628111:3@s.whatsapp.net", true},
		{"other number", []string{"628111"}, "628222@c.us", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("whatsapp", bus.New(), tt.allow)
			if got := c.IsAllowed(tt.sender); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.sender, got, tt.want)
			}
		})
	}
}

func TestCheckPolicy(t *testing.T) {
	c := NewBaseChannel("whatsapp", bus.New(), []string{"628111"})
	tests := []struct {
		policy string
		sender string
		want   bool
	}{
		{"", "628999@c.us", true},
		{"open", "628999@c.us", true},
		{"disabled", "628111@c.us", false},
		{"allowlist", "628111@c.us", true},
		{"allowlist", "628999@c.us", false},
	}
	for _, tt := range tests {
		if got := c.CheckPolicy(tt.policy, tt.sender); got != tt.want {
			t.Errorf("CheckPolicy(%q, %q) = %v, want %v", tt.policy, tt.sender, got, tt.want)
		}
	}
}

func TestHandleMessagePublishes(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("whatsapp", b, nil)
	c.HandleMessage("628111@c.us", "628111@c.us", "ABC", "halo", map[string]string{"source": "wwebjs"}, PeerDirect)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no message published")
	}
	if msg.MessageID != "ABC" || msg.Content != "halo" || msg.Channel != "whatsapp" {
		t.Errorf("published %+v", msg)
	}
}

func TestSenderRateLimiter(t *testing.T) {
	r := NewSenderRateLimiter()
	base := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return base }

	for i := 0; i < rateLimitMaxHits; i++ {
		if !r.Allow("628111@c.us") {
			t.Fatalf("Allow #%d = false, want true", i+1)
		}
	}
	if r.Allow("628111@c.us") {
		t.Error("Allow over budget = true, want false")
	}
	if !r.Allow("628222@c.us") {
		t.Error("other chat should have its own budget")
	}

	base = base.Add(rateLimitWindow)
	if !r.Allow("628111@c.us") {
		t.Error("new window should reset the budget")
	}
}

type fakeChannel struct {
	name     string
	running  bool
	startErr error
	sent     []bus.OutboundMessage
}

func (f *fakeChannel) Name() string          { return f.name }
func (f *fakeChannel) IsRunning() bool       { return f.running }
func (f *fakeChannel) IsAllowed(string) bool { return true }

func (f *fakeChannel) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeChannel) Stop(context.Context) error {
	f.running = false
	return nil
}

func (f *fakeChannel) Send(_ context.Context, m bus.OutboundMessage) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestManager(t *testing.T) {
	m := NewManager()
	if m.AllRunning() {
		t.Error("AllRunning with no channels = true, want false")
	}

	ch := &fakeChannel{name: "whatsapp"}
	m.RegisterChannel("whatsapp", ch)
	ctx := context.Background()
	m.StartAll(ctx)

	if !m.AllRunning() {
		t.Error("AllRunning after start = false")
	}
	if err := m.SendToChannel(ctx, "whatsapp", "628111@c.us", "halo"); err != nil {
		t.Fatalf("SendToChannel: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].ChatID != "628111@c.us" {
		t.Errorf("sent = %+v", ch.sent)
	}
	if err := m.SendToChannel(ctx, "telegram", "1", "x"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("SendToChannel(telegram) = %v, want ErrChannelNotFound", err)
	}
	if st := m.GetStatus(); !st["whatsapp"] {
		t.Errorf("GetStatus = %v", st)
	}

	m.StopAll(ctx)
	if m.AllRunning() {
		t.Error("AllRunning after stop = true")
	}
}

func TestManagerStartAllJoinsErrors(t *testing.T) {
	m := NewManager()
	good := &fakeChannel{name: "a"}
	bad := &fakeChannel{name: "b", startErr: errors.New("bridge unreachable")}
	m.RegisterChannel("a", good)
	m.RegisterChannel("b", bad)

	err := m.StartAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bridge unreachable") {
		t.Fatalf("StartAll() = %v, want joined start error", err)
	}
	if !good.running {
		t.Error("healthy channel should start despite a sibling failure")
	}
	if m.AllRunning() {
		t.Error("AllRunning with a failed channel = true")
	}
	if got := m.GetEnabledChannels(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("GetEnabledChannels() = %v, want [a b]", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("halo dunia", 4); got != "halo..." {
		t.Errorf("Truncate = %q, want %q", got, "halo...")
	}
	if got := Truncate("hi", 4); got != "hi" {
		t.Errorf("Truncate = %q, want %q", got, "hi")
	}
}
