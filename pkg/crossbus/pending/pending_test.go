package pending

import (
	"testing"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

func TestTable_CreateResolve(t *testing.T) {
	tbl := New(0)
	id, promise, err := tbl.Create("peer-b", "echo", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tbl.Resolve(id, true, "pong", nil)

	select {
	case <-promise.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected the promise to complete")
	}
	data, resolveErr := promise.Value()
	if resolveErr != nil || data != "pong" {
		t.Fatalf("expected data=pong err=nil, got data=%v err=%v", data, resolveErr)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected the entry to be removed after completion")
	}
}

func TestTable_ResolveFailure(t *testing.T) {
	tbl := New(0)
	id, promise, _ := tbl.Create("peer-b", "echo", time.Second)
	remoteErr := xerrors.From(xerrors.CodeHandlerError, nil)
	tbl.Resolve(id, false, nil, remoteErr)

	<-promise.Done()
	_, err := promise.Value()
	if !xerrors.IsCode(err, xerrors.CodeHandlerError) {
		t.Fatalf("expected the remote error code to propagate, got %v", err)
	}
}

func TestTable_TimeoutFiresAutomatically(t *testing.T) {
	tbl := New(0)
	_, promise, _ := tbl.Create("peer-b", "echo", 10*time.Millisecond)

	select {
	case <-promise.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected the request to time out on its own")
	}
	_, err := promise.Value()
	if !xerrors.IsCode(err, xerrors.CodeResponseTimeout) {
		t.Fatalf("expected CodeResponseTimeout, got %v", err)
	}
}

func TestTable_CancelStopsTimer(t *testing.T) {
	tbl := New(0)
	id, promise, _ := tbl.Create("peer-b", "echo", time.Hour)
	if !tbl.Cancel(id, "client gave up") {
		t.Fatalf("expected Cancel to report success for a live entry")
	}
	<-promise.Done()
	_, err := promise.Value()
	if !xerrors.IsCode(err, xerrors.CodeCancelled) {
		t.Fatalf("expected CodeCancelled, got %v", err)
	}
	if tbl.Cancel(id, "again") {
		t.Fatalf("expected a second Cancel of the same id to report false")
	}
}

func TestTable_MaxPendingRejectsOverCap(t *testing.T) {
	tbl := New(1)
	_, _, err := tbl.Create("peer-b", "echo", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error on first Create: %v", err)
	}
	_, _, err = tbl.Create("peer-b", "echo", time.Hour)
	if !xerrors.IsCode(err, xerrors.CodeMaxPending) {
		t.Fatalf("expected CodeMaxPending once at cap, got %v", err)
	}
}

func TestTable_CancelForPeerOnlyAffectsThatPeer(t *testing.T) {
	tbl := New(0)
	_, promiseB, _ := tbl.Create("peer-b", "echo", time.Hour)
	_, promiseC, _ := tbl.Create("peer-c", "echo", time.Hour)

	tbl.CancelForPeer("peer-b")

	<-promiseB.Done()
	_, errB := promiseB.Value()
	if !xerrors.IsCode(errB, xerrors.CodePeerDisconnected) {
		t.Fatalf("expected peer-b's request to be cancelled with CodePeerDisconnected, got %v", errB)
	}
	select {
	case <-promiseC.Done():
		t.Fatalf("expected peer-c's request to remain pending")
	default:
	}
}

func TestTable_LateResponseIsDroppedAndCounted(t *testing.T) {
	tbl := New(0)
	id, promise, _ := tbl.Create("peer-b", "echo", 10*time.Millisecond)
	<-promise.Done() // let it time out first

	tbl.Resolve(id, true, "too-late", nil)

	if tbl.DroppedLateResponses() != 1 {
		t.Fatalf("expected one dropped late response, got %d", tbl.DroppedLateResponses())
	}
}

func TestTable_CancelAll(t *testing.T) {
	tbl := New(0)
	_, p1, _ := tbl.Create("a", "x", time.Hour)
	_, p2, _ := tbl.Create("b", "x", time.Hour)
	tbl.CancelAll()
	for _, p := range []*Promise{p1, p2} {
		<-p.Done()
		_, err := p.Value()
		if !xerrors.IsCode(err, xerrors.CodeDestroyed) {
			t.Fatalf("expected CodeDestroyed, got %v", err)
		}
	}
}
