// Package presence implements join/leave/heartbeat liveness tracking: a
// record per remote peer touched on every inbound presence message, and a
// ticker-driven sweeper that evicts peers whose last-seen timestamp falls
// outside the liveness window.
package presence

import (
	"context"
	"sync"
	"time"
)

// Record is what presence tracks about a remote peer.
type Record struct {
	PeerID   string
	Meta     map[string]interface{}
	LastSeen time.Time
}

// Publisher is how presence emits join/leave/heartbeat to the rest of the
// bus (typically: broadcast a presence envelope, and emit a local event).
type Publisher interface {
	PublishJoin(meta map[string]interface{})
	PublishLeave()
	PublishHeartbeat()
	OnLeave(peerID string)
	OnJoin(peerID string, meta map[string]interface{})
	OnUpdate(peerID string, meta map[string]interface{})
}

// Tracker owns the liveness table and the sweeper/heartbeat goroutines.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*Record
	timeout  time.Duration
	interval time.Duration
	pub      Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Tracker. timeout is the liveness window; interval is the
// local heartbeat cadence.
func New(timeout, interval time.Duration, pub Publisher) *Tracker {
	return &Tracker{records: make(map[string]*Record), timeout: timeout, interval: interval, pub: pub}
}

// Start publishes a join and begins the heartbeat+sweep goroutine.
func (t *Tracker) Start(meta map[string]interface{}) {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.pub.PublishJoin(meta)
	t.wg.Add(1)
	go t.loop()
}

// Stop publishes a leave and halts the heartbeat+sweep goroutine. Idempotent.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.cancel = nil
	t.wg.Wait()
	t.pub.PublishLeave()
}

func (t *Tracker) loop() {
	defer t.wg.Done()
	heartbeat := time.NewTicker(t.interval)
	sweep := time.NewTicker(t.timeout / 2)
	defer heartbeat.Stop()
	defer sweep.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-heartbeat.C:
			t.pub.PublishHeartbeat()
		case <-sweep.C:
			t.sweepOnce()
		}
	}
}

func (t *Tracker) sweepOnce() {
	now := time.Now()
	t.mu.Lock()
	var stale []string
	for id, r := range t.records {
		if now.Sub(r.LastSeen) > t.timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(t.records, id)
	}
	t.mu.Unlock()
	for _, id := range stale {
		t.pub.OnLeave(id)
	}
}

// Upsert records a join/update/heartbeat from peerID, touching its
// last-seen timestamp. Unknown peers are registered idempotently: a
// heartbeat from a peer never seen before counts as an implicit join.
func (t *Tracker) Upsert(peerID string, meta map[string]interface{}, isJoin bool) {
	t.mu.Lock()
	r, existed := t.records[peerID]
	if !existed {
		r = &Record{PeerID: peerID}
		t.records[peerID] = r
	}
	if meta != nil {
		r.Meta = meta
	}
	r.LastSeen = time.Now()
	t.mu.Unlock()

	if !existed {
		t.pub.OnJoin(peerID, meta)
	} else if !isJoin {
		t.pub.OnUpdate(peerID, meta)
	}
}

// Remove deletes peerID from the liveness table (inbound leave).
func (t *Tracker) Remove(peerID string) {
	t.mu.Lock()
	_, existed := t.records[peerID]
	delete(t.records, peerID)
	t.mu.Unlock()
	if existed {
		t.pub.OnLeave(peerID)
	}
}

// Snapshot returns a copy of every currently-tracked record.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}
