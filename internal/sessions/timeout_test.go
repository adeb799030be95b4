package sessions

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sentMessage struct {
	chatID string
	text   string
	at     time.Time
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []sentMessage
	ch   chan sentMessage
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan sentMessage, 16)}
}

func (r *recordingSender) SendMessage(_ context.Context, chatID, text string) error {
	m := sentMessage{chatID: chatID, text: text, at: time.Now()}
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	r.ch <- m
	return nil
}

func (r *recordingSender) wait(t *testing.T, n int, timeout time.Duration) []sentMessage {
	t.Helper()
	var got []sentMessage
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case m := <-r.ch:
			got = append(got, m)
		case <-deadline:
			t.Fatalf("got %d messages, want %d", len(got), n)
		}
	}
	return got
}

func (r *recordingSender) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case m := <-r.ch:
		t.Fatalf("unexpected message %q", m.text)
	case <-time.After(within):
	}
}

func TestTimeoutSchedulerFiresInOrder(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	cooldowns, err := NewCooldowns(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer cooldowns.Close()
	sched := NewTimeoutScheduler(store, sender, cooldowns, Timeouts{
		Session:       90 * time.Millisecond,
		WarningBefore: 50 * time.Millisecond,
		NoReply:       15 * time.Millisecond,
	})

	s := store.GetOrCreate("chat")
	sched.Arm("chat", s, true)

	got := sender.wait(t, 3, 2*time.Second)
	want := []string{NoReplyMessage, WarningMessage, ExpiredMessage}
	for i, w := range want {
		if got[i].text != w {
			t.Errorf("message %d = %q, want %q", i, got[i].text, w)
		}
	}
	if _, ok := store.Get("chat"); ok {
		t.Error("session should be deleted on expiry")
	}
	if !cooldowns.Active("chat") {
		t.Error("expiry should start the cooldown")
	}
}

func TestTimeoutSchedulerNoReplyOnlyWhenExpected(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	sched := NewTimeoutScheduler(store, sender, nil, Timeouts{
		Session:       80 * time.Millisecond,
		WarningBefore: 20 * time.Millisecond,
		NoReply:       10 * time.Millisecond,
	})
	s := store.GetOrCreate("chat")
	sched.Arm("chat", s, false)

	got := sender.wait(t, 2, 2*time.Second)
	if got[0].text != WarningMessage || got[1].text != ExpiredMessage {
		t.Errorf("got %q then %q", got[0].text, got[1].text)
	}
}

func TestTimeoutSchedulerRearmSupersedesWarning(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	sched := NewTimeoutScheduler(store, sender, nil, Timeouts{
		Session:       200 * time.Millisecond,
		WarningBefore: 150 * time.Millisecond,
	})
	s := store.GetOrCreate("chat")

	start := time.Now()
	sched.Arm("chat", s, false) // warning due at +50ms
	time.Sleep(25 * time.Millisecond)
	sched.Arm("chat", s, false) // warning now due at about +75ms

	got := sender.wait(t, 1, 2*time.Second)
	if got[0].text != WarningMessage {
		t.Fatalf("first message = %q, want warning", got[0].text)
	}
	if elapsed := got[0].at.Sub(start); elapsed < 65*time.Millisecond {
		t.Errorf("warning fired after %v, superseded timer leaked", elapsed)
	}
	sched.Cancel(s)
}

func TestTimeoutSchedulerDeletedSessionIsSilent(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	sched := NewTimeoutScheduler(store, sender, nil, Timeouts{
		Session:       40 * time.Millisecond,
		WarningBefore: 20 * time.Millisecond,
		NoReply:       10 * time.Millisecond,
	})
	s := store.GetOrCreate("chat")
	sched.Arm("chat", s, true)
	store.Delete("chat")

	sender.expectNone(t, 120*time.Millisecond)
}

func TestTimeoutSchedulerTouchInvalidatesTimers(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	sched := NewTimeoutScheduler(store, sender, nil, Timeouts{
		Session:       40 * time.Millisecond,
		WarningBefore: 20 * time.Millisecond,
	})
	s := store.GetOrCreate("chat")
	sched.Arm("chat", s, false)
	if !sched.Touch("chat", s) {
		t.Fatal("Touch failed")
	}

	sender.expectNone(t, 100*time.Millisecond)
	if _, ok := store.Get("chat"); !ok {
		t.Error("stale expiry deleted a touched session")
	}
	sched.Cancel(s)
}

func TestTimeoutSchedulerCancel(t *testing.T) {
	store := NewManager()
	sender := newRecordingSender()
	sched := NewTimeoutScheduler(store, sender, nil, Timeouts{
		Session:       30 * time.Millisecond,
		WarningBefore: 10 * time.Millisecond,
		NoReply:       5 * time.Millisecond,
	})
	s := store.GetOrCreate("chat")
	sched.Arm("chat", s, true)
	sched.Cancel(s)
	if s.HasTimers() {
		t.Error("Cancel left timers armed")
	}
	sender.expectNone(t, 80*time.Millisecond)
}
