package presence

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakePublisher struct {
	mu              sync.Mutex
	joins, updates  []string
	leaves          []string
	joinedPublished int
	leavePublished  int
	heartbeatCount  int
}

func (f *fakePublisher) PublishJoin(meta map[string]interface{}) {
	f.mu.Lock()
	f.joinedPublished++
	f.mu.Unlock()
}
func (f *fakePublisher) PublishLeave()     { f.mu.Lock(); f.leavePublished++; f.mu.Unlock() }
func (f *fakePublisher) PublishHeartbeat() { f.mu.Lock(); f.heartbeatCount++; f.mu.Unlock() }
func (f *fakePublisher) OnJoin(peerID string, meta map[string]interface{}) {
	f.mu.Lock()
	f.joins = append(f.joins, peerID)
	f.mu.Unlock()
}
func (f *fakePublisher) OnUpdate(peerID string, meta map[string]interface{}) {
	f.mu.Lock()
	f.updates = append(f.updates, peerID)
	f.mu.Unlock()
}
func (f *fakePublisher) OnLeave(peerID string) {
	f.mu.Lock()
	f.leaves = append(f.leaves, peerID)
	f.mu.Unlock()
}

func TestTracker_UpsertImplicitJoinThenUpdate(t *testing.T) {
	pub := &fakePublisher{}
	tr := New(time.Minute, time.Minute, pub)

	tr.Upsert("peer-a", map[string]interface{}{"r": 1}, false)
	tr.Upsert("peer-a", map[string]interface{}{"r": 2}, false)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.joins) != 1 || pub.joins[0] != "peer-a" {
		t.Fatalf("expected exactly one implicit join for peer-a, got %v", pub.joins)
	}
	if len(pub.updates) != 1 || pub.updates[0] != "peer-a" {
		t.Fatalf("expected the second Upsert to be reported as an update, got %v", pub.updates)
	}
}

func TestTracker_RemovePublishesLeaveOnlyIfPresent(t *testing.T) {
	pub := &fakePublisher{}
	tr := New(time.Minute, time.Minute, pub)
	tr.Upsert("peer-a", nil, true)

	tr.Remove("peer-a")
	tr.Remove("peer-a") // second removal of an already-gone peer must be a no-op

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.leaves) != 1 {
		t.Fatalf("expected exactly one OnLeave call, got %d", len(pub.leaves))
	}
}

func TestTracker_StartStopPublishesJoinAndLeave(t *testing.T) {
	defer goleak.VerifyNone(t)
	pub := &fakePublisher{}
	tr := New(time.Hour, time.Hour, pub)
	tr.Start(nil)
	tr.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.joinedPublished != 1 || pub.leavePublished != 1 {
		t.Fatalf("expected one PublishJoin and one PublishLeave, got %d/%d", pub.joinedPublished, pub.leavePublished)
	}
}

func TestTracker_StopIsIdempotentWithoutStart(t *testing.T) {
	pub := &fakePublisher{}
	tr := New(time.Hour, time.Hour, pub)
	tr.Stop() // never Start'ed; must not panic or publish anything

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.leavePublished != 0 {
		t.Fatalf("expected Stop before Start to be a no-op, got %d leave publishes", pub.leavePublished)
	}
}

func TestTracker_HeartbeatFiresOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	tr := New(time.Hour, 10*time.Millisecond, pub)
	tr.Start(nil)
	defer func() {
		tr.Stop()
		goleak.VerifyNone(t)
	}()

	time.Sleep(50 * time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.heartbeatCount == 0 {
		t.Fatalf("expected at least one heartbeat to have fired")
	}
}

func TestTracker_SweepRemovesStalePeers(t *testing.T) {
	pub := &fakePublisher{}
	tr := New(20*time.Millisecond, time.Hour, pub)
	tr.Start(nil)
	defer tr.Stop()

	tr.Upsert("stale-peer", nil, true)
	time.Sleep(60 * time.Millisecond) // outlives the timeout; sweep runs at timeout/2

	pub.mu.Lock()
	defer pub.mu.Unlock()
	found := false
	for _, id := range pub.leaves {
		if id == "stale-peer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the sweeper to evict a peer that stopped sending heartbeats, got leaves=%v", pub.leaves)
	}
}
