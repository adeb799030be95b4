package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultLockTimeout force-releases a processing lock a handler forgot.
const DefaultLockTimeout = 30 * time.Second

// LockContext describes the caller holding a processing lock, for diagnostics.
type LockContext struct {
	Scope string
	Step  string
}

// LockInfo is a snapshot of the current holder of a chat's lock.
type LockInfo struct {
	AcquiredAt          time.Time
	WaitTime            time.Duration
	QueueDepthOnAcquire int
	QueueDepth          int
	Context             LockContext
}

type lockWaiter struct {
	ready      chan struct{}
	enqueuedAt time.Time
	ctx        LockContext
	gen        uint64
}

type lockEntry struct {
	held    bool
	gen     uint64
	timer   *time.Timer
	waiters []*lockWaiter
	info    LockInfo
}

func (e *lockEntry) remove(w *lockWaiter) bool {
	for i, x := range e.waiters {
		if x == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// ProcessingLock serializes message handling per chat. Waiters are served
// in FIFO order. Each grant arms a safety timer that force-releases the lock
// if the holder never does.
type ProcessingLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
}

// NewProcessingLock creates a lock table with the given safety timeout.
func NewProcessingLock(timeout time.Duration) *ProcessingLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &ProcessingLock{entries: make(map[string]*lockEntry), timeout: timeout}
}

// Acquire blocks until the caller holds the lock for chatID or ctx is done.
// The returned release func is idempotent.
func (l *ProcessingLock) Acquire(ctx context.Context, chatID string, lc LockContext) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	e := l.entries[chatID]
	if e == nil {
		e = &lockEntry{}
		l.entries[chatID] = e
	}
	if !e.held {
		gen := l.grantLocked(chatID, e, lc, 0)
		l.mu.Unlock()
		return l.releaser(chatID, gen), nil
	}
	w := &lockWaiter{ready: make(chan struct{}), enqueuedAt: start, ctx: lc}
	e.waiters = append(e.waiters, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return l.releaser(chatID, w.gen), nil
	case <-ctx.Done():
		l.mu.Lock()
		if e.remove(w) {
			l.mu.Unlock()
			return nil, ctx.Err()
		}
		// handed over while we were giving up: pass it on
		gen := w.gen
		l.mu.Unlock()
		l.release(chatID, gen)
		return nil, ctx.Err()
	}
}

func (l *ProcessingLock) grantLocked(chatID string, e *lockEntry, lc LockContext, wait time.Duration) uint64 {
	e.held = true
	e.gen++
	gen := e.gen
	e.info = LockInfo{
		AcquiredAt:          time.Now(),
		WaitTime:            wait,
		QueueDepthOnAcquire: len(e.waiters),
		Context:             lc,
	}
	e.timer = time.AfterFunc(l.timeout, func() { l.forceRelease(chatID, gen) })
	return gen
}

func (l *ProcessingLock) releaser(chatID string, gen uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(chatID, gen) })
	}
}

// release hands the lock to the next waiter, or drops the entry. A release
// for a generation that is no longer current is ignored.
func (l *ProcessingLock) release(chatID string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[chatID]
	if e == nil || !e.held || e.gen != gen {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if len(e.waiters) == 0 {
		delete(l.entries, chatID)
		return
	}
	w := e.waiters[0]
	e.waiters = e.waiters[1:]
	w.gen = l.grantLocked(chatID, e, w.ctx, time.Since(w.enqueuedAt))
	close(w.ready)
}

func (l *ProcessingLock) forceRelease(chatID string, gen uint64) {
	l.mu.Lock()
	e := l.entries[chatID]
	if e == nil || !e.held || e.gen != gen {
		l.mu.Unlock()
		return
	}
	info := e.info
	queued := len(e.waiters)
	l.mu.Unlock()

	slog.Warn("processing lock timeout, forcing release",
		"chat_id", chatID,
		"held_ms", time.Since(info.AcquiredAt).Milliseconds(),
		"wait_ms", info.WaitTime.Milliseconds(),
		"queue_depth_on_acquire", info.QueueDepthOnAcquire,
		"queue_depth", queued,
		"scope", info.Context.Scope,
		"step", info.Context.Step,
	)
	l.release(chatID, gen)
}

// IsProcessing reports whether chatID's lock is held.
func (l *ProcessingLock) IsProcessing(chatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[chatID]
	return e != nil && e.held
}

// Info returns diagnostics for chatID's current holder.
func (l *ProcessingLock) Info(chatID string) (LockInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[chatID]
	if e == nil || !e.held {
		return LockInfo{}, false
	}
	info := e.info
	info.QueueDepth = len(e.waiters)
	return info, true
}

// Held returns how many chats currently hold a lock.
func (l *ProcessingLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
