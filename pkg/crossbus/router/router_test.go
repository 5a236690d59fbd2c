package router

import (
	"sync"
	"testing"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

func newTestTable(maxPeers int) (*Table, *[]string) {
	var added []string
	var mu sync.Mutex
	tbl := New(maxPeers, func(p Peer) {
		mu.Lock()
		added = append(added, p.ID)
		mu.Unlock()
	}, nil, nil)
	return tbl, &added
}

func TestTable_AddPeerRejectsDuplicateAndOverCap(t *testing.T) {
	tbl, added := newTestTable(1)
	if _, err := tbl.AddPeer("a", nil, nil); err != nil {
		t.Fatalf("unexpected error adding first peer: %v", err)
	}
	if _, err := tbl.AddPeer("a", nil, nil); !xerrors.IsCode(err, xerrors.CodePeerExists) {
		t.Fatalf("expected CodePeerExists for a duplicate id, got %v", err)
	}
	if _, err := tbl.AddPeer("b", nil, nil); !xerrors.IsCode(err, xerrors.CodeMaxPeers) {
		t.Fatalf("expected CodeMaxPeers once at cap, got %v", err)
	}
	if len(*added) != 1 {
		t.Fatalf("expected exactly one onAdded callback, got %d", len(*added))
	}
}

func TestRouter_RouteRequiresConnectedPeer(t *testing.T) {
	tbl, _ := newTestTable(0)
	rt := NewRouter(tbl)

	if err := rt.Route("ghost", envelope.NewSignal(envelope.Options{})); !xerrors.IsCode(err, xerrors.CodeNoRoute) {
		t.Fatalf("expected CodeNoRoute for an unknown peer, got %v", err)
	}

	_, _ = tbl.AddPeer("a", func(e envelope.Envelope, t []interface{}) error { return nil }, nil)
	if err := rt.Route("a", envelope.NewSignal(envelope.Options{})); !xerrors.IsCode(err, xerrors.CodePeerDisconnected) {
		t.Fatalf("expected CodePeerDisconnected for a peer still in StatusConnecting, got %v", err)
	}

	_ = tbl.SetPeerStatus("a", StatusConnected)
	if err := rt.Route("a", envelope.NewSignal(envelope.Options{})); err != nil {
		t.Fatalf("expected Route to succeed for a connected peer, got %v", err)
	}
}

func TestRouter_RouteAssignsIncreasingSequence(t *testing.T) {
	tbl, _ := newTestTable(0)
	rt := NewRouter(tbl)
	var seqs []uint64
	_, _ = tbl.AddPeer("a", func(e envelope.Envelope, transferables []interface{}) error {
		seqs = append(seqs, e.Sequence())
		return nil
	}, nil)
	_ = tbl.SetPeerStatus("a", StatusConnected)

	for i := 0; i < 3; i++ {
		if err := rt.Route("a", envelope.NewSignal(envelope.Options{})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("expected sequence numbers 1,2,3; got %v", seqs)
	}
}

func TestRouter_BroadcastIsolatesPerPeerFailures(t *testing.T) {
	tbl, _ := newTestTable(0)
	rt := NewRouter(tbl)
	_, _ = tbl.AddPeer("ok", func(e envelope.Envelope, transferables []interface{}) error { return nil }, nil)
	_, _ = tbl.AddPeer("bad", func(e envelope.Envelope, transferables []interface{}) error {
		return xerrors.From(xerrors.CodeChannelFailed, nil)
	}, nil)
	_ = tbl.SetPeerStatus("ok", StatusConnected)
	_ = tbl.SetPeerStatus("bad", StatusConnected)

	result := rt.Broadcast(envelope.NewBroadcast(envelope.Options{}), BroadcastOptions{})
	if len(result.Sent) != 1 || result.Sent[0] != "ok" {
		t.Fatalf("expected only 'ok' to be reported sent, got %v", result.Sent)
	}
	if _, failed := result.Failed["bad"]; !failed {
		t.Fatalf("expected 'bad' to be reported as a per-peer failure")
	}
}

func TestRouter_BroadcastExcludeAndInclude(t *testing.T) {
	tbl, _ := newTestTable(0)
	rt := NewRouter(tbl)
	for _, id := range []string{"a", "b", "c"} {
		_, _ = tbl.AddPeer(id, func(e envelope.Envelope, transferables []interface{}) error { return nil }, nil)
		_ = tbl.SetPeerStatus(id, StatusConnected)
	}

	excluded := rt.Broadcast(envelope.NewBroadcast(envelope.Options{}), BroadcastOptions{Exclude: []string{"b"}})
	if len(excluded.Sent) != 2 {
		t.Fatalf("expected 2 peers reached with b excluded, got %d", len(excluded.Sent))
	}

	included := rt.Broadcast(envelope.NewBroadcast(envelope.Options{}), BroadcastOptions{Include: []string{"a"}})
	if len(included.Sent) != 1 || included.Sent[0] != "a" {
		t.Fatalf("expected only 'a' reached via Include, got %v", included.Sent)
	}
}

func TestTable_RemovePeerInvokesCallback(t *testing.T) {
	var removed []string
	tbl := New(0, nil, func(p Peer) { removed = append(removed, p.ID) }, nil)
	_, _ = tbl.AddPeer("a", nil, nil)
	tbl.RemovePeer("a")
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("expected onRemoved to fire once with 'a', got %v", removed)
	}
	if _, ok := tbl.Get("a"); ok {
		t.Fatalf("expected 'a' to be gone from the table")
	}
}
