package sessions

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProcessingLockSerializes(t *testing.T) {
	l := NewProcessingLock(time.Second)
	ctx := context.Background()

	release1, err := l.Acquire(ctx, "chat", LockContext{Scope: "test"})
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := l.Acquire(ctx, "chat", LockContext{Scope: "test"})
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire resolved while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not resolve after release")
	}
}

func TestProcessingLockFIFO(t *testing.T) {
	l := NewProcessingLock(time.Second)
	ctx := context.Background()
	release, _ := l.Acquire(ctx, "chat", LockContext{})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.Acquire(ctx, "chat", LockContext{})
			if err != nil {
				t.Errorf("Acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		// let goroutine i enqueue before i+1
		for deadline := time.Now().Add(time.Second); ; {
			info, _ := l.Info("chat")
			if info.QueueDepth == i+1 || time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	release()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want FIFO", order)
		}
	}
}

func TestProcessingLockIndependentChats(t *testing.T) {
	l := NewProcessingLock(time.Second)
	r1, _ := l.Acquire(context.Background(), "a", LockContext{})
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r2, err := l.Acquire(ctx, "b", LockContext{})
	if err != nil {
		t.Fatalf("lock on another chat blocked: %v", err)
	}
	r2()
}

func TestProcessingLockReleaseIdempotent(t *testing.T) {
	l := NewProcessingLock(time.Second)
	ctx := context.Background()
	r1, _ := l.Acquire(ctx, "chat", LockContext{})
	r1()

	r2, _ := l.Acquire(ctx, "chat", LockContext{})
	r1() // stale second release must not free r2's hold
	if !l.IsProcessing("chat") {
		t.Fatal("double release freed the next holder")
	}
	r2()
	if l.IsProcessing("chat") {
		t.Error("lock still held after release")
	}
	if l.Held() != 0 {
		t.Errorf("Held() = %d, want 0", l.Held())
	}
}

func TestProcessingLockContextCancel(t *testing.T) {
	l := NewProcessingLock(time.Second)
	r1, _ := l.Acquire(context.Background(), "chat", LockContext{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "chat", LockContext{}); err == nil {
		t.Fatal("Acquire should fail when ctx expires")
	}
	r1()
	if l.IsProcessing("chat") {
		t.Error("cancelled waiter left the lock held")
	}
}

func TestProcessingLockTimeoutAutoReleases(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	l := NewProcessingLock(30 * time.Millisecond)
	_, err := l.Acquire(context.Background(), "628@c.us", LockContext{Scope: "usermenu", Step: "updateAskField"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := l.Acquire(ctx, "628@c.us", LockContext{})
	if err != nil {
		t.Fatalf("waiter never got the lock after timeout: %v", err)
	}
	r2()

	out := buf.String()
	for _, want := range []string{"processing lock timeout", "chat_id=628@c.us", "scope=usermenu", "step=updateAskField", "queue_depth=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
