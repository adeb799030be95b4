package outbox

import (
	"math"
	"time"
)

type counters struct {
	processed    int64
	failed       int64
	dead         int64
	latencyTotal time.Duration
	latencyMax   time.Duration
	lastOK       time.Time
	lastFail     time.Time
}

func (c *counters) completed(at time.Time, latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	c.processed++
	c.latencyTotal += latency
	if latency > c.latencyMax {
		c.latencyMax = latency
	}
	c.lastOK = at
}

func (c *counters) failedAttempt(at time.Time) {
	c.failed++
	c.lastFail = at
}

// QueueCounts splits the queue by job state. Failed counts jobs that used up
// every attempt.
type QueueCounts struct {
	Waiting   int   `json:"waiting"`
	Active    int   `json:"active"`
	Delayed   int   `json:"delayed"`
	Failed    int64 `json:"failed"`
	Completed int64 `json:"completed"`
}

// Latency is enqueue-to-delivery time in milliseconds.
type Latency struct {
	Average float64 `json:"average"`
	Max     int64   `json:"max"`
}

// Metrics is the outbox section of the health payload. Failed counts every
// failed attempt, including ones later retried.
type Metrics struct {
	QueueDepth      int         `json:"queueDepth"`
	QueueCounts     QueueCounts `json:"queueCounts"`
	SendLatencyMs   Latency     `json:"sendLatencyMs"`
	Processed       int64       `json:"processed"`
	Failed          int64       `json:"failed"`
	LastProcessedAt *time.Time  `json:"lastProcessedAt"`
	LastFailedAt    *time.Time  `json:"lastFailedAt"`
}

// Metrics returns a snapshot of delivery counters and queue depth.
func (o *Outbox) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := o.stats
	m := Metrics{
		QueueCounts: QueueCounts{
			Waiting:   o.pending.Len(),
			Active:    o.active,
			Delayed:   o.delayed,
			Failed:    c.dead,
			Completed: c.processed,
		},
		SendLatencyMs: Latency{Max: c.latencyMax.Milliseconds()},
		Processed:     c.processed,
		Failed:        c.failed,
	}
	m.QueueDepth = m.QueueCounts.Waiting + m.QueueCounts.Active + m.QueueCounts.Delayed
	if c.processed > 0 {
		avg := float64(c.latencyTotal.Milliseconds()) / float64(c.processed)
		m.SendLatencyMs.Average = math.Round(avg*100) / 100
	}
	if !c.lastOK.IsZero() {
		t := c.lastOK
		m.LastProcessedAt = &t
	}
	if !c.lastFail.IsZero() {
		t := c.lastFail
		m.LastFailedAt = &t
	}
	return m
}
