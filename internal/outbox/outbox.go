// Package outbox queues outgoing chat messages and delivers them through a
// single rate-limited worker with retries.
package outbox

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Transport delivers text to a chat on a named channel.
type Transport interface {
	SendToChannel(ctx context.Context, channel, chatID, content string) error
}

// Delivery defaults.
const (
	DefaultChannel           = "whatsapp"
	DefaultMinInterval       = 350 * time.Millisecond
	DefaultReservoir         = 40
	DefaultReservoirInterval = time.Minute
	DefaultAttempts          = 5
	DefaultBackoffBase       = 2 * time.Second
)

// Config controls throughput and retry behaviour. Zero values take defaults.
type Config struct {
	// Channel is the transport channel used by SendMessage.
	Channel string
	// MinInterval is the minimum gap between two sends.
	MinInterval time.Duration
	// Reservoir sends are allowed per ReservoirInterval.
	Reservoir         int
	ReservoirInterval time.Duration
	Attempts          int
	BackoffBase       time.Duration
	// Priority for SendMessage jobs.
	Priority Priority
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Reservoir <= 0 {
		c.Reservoir = DefaultReservoir
	}
	if c.ReservoirInterval <= 0 {
		c.ReservoirInterval = DefaultReservoirInterval
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.Priority == 0 {
		c.Priority = PriorityHigh
	}
	return c
}

// EnqueueOptions override per-job settings.
type EnqueueOptions struct {
	Priority Priority
	Attempts int
	Backoff  time.Duration
}

// Outbox is safe for concurrent use. Run must be started for jobs to flow.
type Outbox struct {
	cfg       Config
	transport Transport
	minGap    *rate.Limiter
	reservoir *rate.Limiter

	mu      sync.Mutex
	pending jobHeap
	seq     uint64
	active  int
	delayed int
	stats   counters
	wake    chan struct{}
}

// New creates an outbox sending through t.
func New(t Transport, cfg Config) *Outbox {
	cfg = cfg.withDefaults()
	return &Outbox{
		cfg:       cfg,
		transport: t,
		minGap:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		reservoir: rate.NewLimiter(rate.Every(cfg.ReservoirInterval/time.Duration(cfg.Reservoir)), cfg.Reservoir),
		wake:      make(chan struct{}, 1),
	}
}

// SendMessage queues text for chatID on the configured channel. It returns
// once the job is queued; delivery failures are retried and counted.
func (o *Outbox) SendMessage(_ context.Context, chatID, text string) error {
	_, err := o.Enqueue(o.cfg.Channel, chatID, text, EnqueueOptions{Priority: o.cfg.Priority})
	return err
}

// Enqueue adds a job and returns its id.
func (o *Outbox) Enqueue(channel, chatID, text string, opts EnqueueOptions) (string, error) {
	if chatID == "" {
		return "", fmt.Errorf("outbox: empty chat id")
	}
	job := &Job{
		ID:         uuid.NewString(),
		Channel:    channel,
		ChatID:     chatID,
		Text:       text,
		Priority:   opts.Priority,
		Attempts:   opts.Attempts,
		Backoff:    opts.Backoff,
		EnqueuedAt: time.Now(),
	}
	if job.Priority == 0 {
		job.Priority = PriorityLow
	}
	if job.Attempts <= 0 {
		job.Attempts = o.cfg.Attempts
	}
	if job.Backoff <= 0 {
		job.Backoff = o.cfg.BackoffBase
	}

	o.mu.Lock()
	o.seq++
	job.seq = o.seq
	heap.Push(&o.pending, job)
	o.mu.Unlock()
	o.signal()
	return job.ID, nil
}

func (o *Outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) next() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending.Len() == 0 {
		return nil
	}
	job := heap.Pop(&o.pending).(*Job)
	o.active++
	return job
}

// Run drains the queue until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	slog.Info("outbox worker started", "channel", o.cfg.Channel,
		"min_interval", o.cfg.MinInterval, "reservoir", o.cfg.Reservoir)
	for {
		job := o.next()
		if job == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-o.wake:
				continue
			}
		}
		if err := o.process(ctx, job); err != nil {
			return nil
		}
	}
}

// process returns an error only when ctx ended while waiting for capacity;
// the job is put back in that case.
func (o *Outbox) process(ctx context.Context, job *Job) error {
	if err := o.minGap.Wait(ctx); err != nil {
		o.requeue(job)
		return err
	}
	if err := o.reservoir.Wait(ctx); err != nil {
		o.requeue(job)
		return err
	}

	job.attemptsMade++
	err := o.transport.SendToChannel(ctx, job.Channel, job.ChatID, job.Text)
	now := time.Now()

	o.mu.Lock()
	o.active--
	if err == nil {
		o.stats.completed(now, now.Sub(job.EnqueuedAt))
		o.mu.Unlock()
		return nil
	}
	o.stats.failedAttempt(now)
	retry := job.attemptsMade < job.Attempts
	if retry {
		o.delayed++
	}
	o.mu.Unlock()

	if !retry {
		slog.Error("outbox send failed permanently", "job_id", job.ID, "chat_id", job.ChatID,
			"attempts", job.attemptsMade, "error", err)
		o.mu.Lock()
		o.stats.dead++
		o.mu.Unlock()
		return nil
	}

	delay := job.retryDelay()
	slog.Warn("outbox send failed, retrying", "job_id", job.ID, "chat_id", job.ChatID,
		"attempt", job.attemptsMade, "retry_in", delay, "error", err)
	time.AfterFunc(delay, func() {
		o.mu.Lock()
		o.delayed--
		heap.Push(&o.pending, job)
		o.mu.Unlock()
		o.signal()
	})
	return nil
}

func (o *Outbox) requeue(job *Job) {
	o.mu.Lock()
	o.active--
	heap.Push(&o.pending, job)
	o.mu.Unlock()
}
