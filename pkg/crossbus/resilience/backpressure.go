package resilience

import (
	"sync"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// BackpressurePolicy is what happens when a destination's queue is full.
type BackpressurePolicy string

const (
	PolicyDropOldest BackpressurePolicy = "drop-oldest"
	PolicyDropNewest BackpressurePolicy = "drop-newest"
	PolicyReject     BackpressurePolicy = "reject"
	PolicyPause      BackpressurePolicy = "pause"
)

// Backpressure is a per-destination outbound queue: an immediate pass when
// the queue is empty, enqueueing up to a cap otherwise, and a configurable
// policy once full.
type Backpressure struct {
	mu      sync.Mutex
	queues  map[string][]interface{}
	maxSize int
	policy  BackpressurePolicy
	drops   map[string]int64
	paused  map[string]bool
	monitor func(dest string, size, max int)
	deliver func(dest string, item interface{}) error
}

// NewBackpressure builds a backpressure controller. deliver is how queued
// items are finally sent; monitor, if set, fires whenever a destination's
// queue exceeds 50% of maxSize or transitions to paused.
func NewBackpressure(maxSize int, policy BackpressurePolicy, deliver func(dest string, item interface{}) error, monitor func(dest string, size, max int)) *Backpressure {
	return &Backpressure{
		queues:  make(map[string][]interface{}),
		maxSize: maxSize,
		policy:  policy,
		drops:   make(map[string]int64),
		paused:  make(map[string]bool),
		monitor: monitor,
		deliver: deliver,
	}
}

// Submit offers item for dest. If dest's queue is empty and dest is not
// paused it is delivered immediately; otherwise it is enqueued, subject to the configured policy
// once the queue is at capacity. The queue never exceeds maxSize and every
// drop is accounted.
func (b *Backpressure) Submit(dest string, item interface{}) error {
	b.mu.Lock()
	q := b.queues[dest]
	if len(q) == 0 && !b.paused[dest] {
		b.mu.Unlock()
		return b.deliver(dest, item)
	}
	if len(q) >= b.maxSize {
		switch b.policy {
		case PolicyDropOldest:
			q = append(q[1:], item)
			b.drops[dest]++
		case PolicyDropNewest:
			b.drops[dest]++
			// item itself is dropped; q unchanged
		case PolicyPause:
			b.paused[dest] = true
			queued := len(q)
			b.mu.Unlock()
			if b.monitor != nil {
				b.monitor(dest, queued, b.maxSize)
			}
			return xerrors.From(xerrors.CodeQueueFull, map[string]interface{}{"dest": dest})
		default: // reject
			b.mu.Unlock()
			return xerrors.From(xerrors.CodeQueueFull, map[string]interface{}{"dest": dest})
		}
	} else {
		q = append(q, item)
	}
	b.queues[dest] = q
	size := len(q)
	b.mu.Unlock()
	b.maybeNotify(dest, size)
	return nil
}

func (b *Backpressure) maybeNotify(dest string, size int) {
	if b.monitor == nil {
		return
	}
	if size*2 > b.maxSize {
		b.monitor(dest, size, b.maxSize)
	}
}

// Flush attempts to drain dest's queue on demand, delivering items in FIFO
// order until delivery fails or the queue empties.
func (b *Backpressure) Flush(dest string) error {
	for {
		b.mu.Lock()
		q := b.queues[dest]
		if len(q) == 0 {
			b.paused[dest] = false
			b.mu.Unlock()
			return nil
		}
		item := q[0]
		b.mu.Unlock()

		if err := b.deliver(dest, item); err != nil {
			return err
		}

		b.mu.Lock()
		q = b.queues[dest]
		if len(q) > 0 {
			q = q[1:]
		}
		b.queues[dest] = q
		b.mu.Unlock()
	}
}

// QueueSize reports how many items are currently queued for dest.
func (b *Backpressure) QueueSize(dest string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[dest])
}

// Dropped reports how many items have been dropped for dest.
func (b *Backpressure) Dropped(dest string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops[dest]
}
