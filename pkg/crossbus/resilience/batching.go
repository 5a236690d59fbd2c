package resilience

import (
	"sync"
	"time"
)

// BatchItem is one coalesced sub-signal.
type BatchItem struct {
	Name string
	Data interface{}
}

// Batcher coalesces outbound signals within a time window or up to a
// maximum batch size, handing them to flushFn as one slice of sub-signals.
// It does not register itself with a bus and does not build envelopes;
// what becomes of a flushed slice is decided by flushFn.
type Batcher struct {
	mu      sync.Mutex
	window  time.Duration
	maxSize int
	pending []BatchItem
	timer   *time.Timer
	flushFn func(items []BatchItem)
}

// NewBatcher builds a Batcher. flushFn is invoked with the accumulated
// items whenever the window elapses or maxSize is reached.
func NewBatcher(window time.Duration, maxSize int, flushFn func(items []BatchItem)) *Batcher {
	return &Batcher{window: window, maxSize: maxSize, flushFn: flushFn}
}

// Add appends item to the current batch, starting the window timer if none
// is running (a later Add does not extend it), and flushing immediately if
// maxSize is reached.
func (b *Batcher) Add(item BatchItem) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	full := b.maxSize > 0 && len(b.pending) >= b.maxSize
	if !full && b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.flushLocked)
	}
	if full {
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		items := b.pending
		b.pending = nil
		b.mu.Unlock()
		b.flushFn(items)
		return
	}
	b.mu.Unlock()
}

func (b *Batcher) flushLocked() {
	b.mu.Lock()
	items := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()
	if len(items) > 0 {
		b.flushFn(items)
	}
}

// Flush forces delivery of whatever is currently pending, if anything.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(items) > 0 {
		b.flushFn(items)
	}
}

// ExpandBatch is the receiver-side counterpart: it turns a batch back into
// individual dispatches, invoking deliver once per sub-signal in order.
func ExpandBatch(items []BatchItem, deliver func(name string, data interface{})) {
	for _, item := range items {
		deliver(item.Name, item.Data)
	}
}
