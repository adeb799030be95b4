package outbox

import (
	"container/heap"
	"strings"
	"time"
)

// Priority orders pending jobs; higher runs first.
type Priority int

const (
	PriorityLow  Priority = 1
	PriorityHigh Priority = 10
)

// ParsePriority maps "high" (any case) to PriorityHigh and everything else to
// PriorityLow.
func ParsePriority(s string) Priority {
	if strings.EqualFold(strings.TrimSpace(s), "high") {
		return PriorityHigh
	}
	return PriorityLow
}

// Job is one queued text send.
type Job struct {
	ID         string
	Channel    string
	ChatID     string
	Text       string
	Priority   Priority
	Attempts   int
	Backoff    time.Duration
	EnqueuedAt time.Time

	attemptsMade int
	seq          uint64
}

// retryDelay is Backoff * 2^(attemptsMade-1).
func (j *Job) retryDelay() time.Duration {
	d := j.Backoff
	for i := 1; i < j.attemptsMade; i++ {
		d *= 2
	}
	return d
}

// jobHeap is a max-heap on priority, FIFO by sequence within a priority.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

var _ heap.Interface = (*jobHeap)(nil)
