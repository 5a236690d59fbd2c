package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
	"github.com/crossbus-io/crossbus/pkg/crossbus/emitter"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handler"
)

func TestProtocol_BootstrapBus(t *testing.T) {
	b := CreateBus("bootstrap-1-bus", t)
	_ = b.Destroy()
	goleak.VerifyNone(t)
}

func TestProtocol_BootstrapCluster(t *testing.T) {
	cluster := CreateCluster(3, "cluster", t)
	cluster.Off()
	goleak.VerifyNone(t)
}

// Every bus registers a "whoami" handler answering with its own name, then
// each bus in turn requests it from every other member of the mesh.
func TestProtocol_RequestAcrossCluster(t *testing.T) {
	cluster := CreateCluster(3, "request", t)
	defer func() {
		if !WaitThisOrTimeout(cluster.Off, 10*time.Second) {
			t.Error("failed shutdown cluster")
			PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()

	for i, b := range cluster.Buses {
		name := cluster.Names[i]
		if err := b.Handle("whoami", func(_ context.Context, _ string, _ interface{}) (interface{}, error) {
			return name, nil
		}, handler.Options{}); err != nil {
			t.Fatalf("failed registering handler on %s. %v", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, b := range cluster.Buses {
		for j, target := range cluster.Names {
			if i == j {
				continue
			}
			res, err := b.Request(ctx, target, "whoami", nil, bus.RequestOptions{})
			if err != nil {
				t.Errorf("request from %s to %s failed. %v", cluster.Names[i], target, err)
				continue
			}
			if res != target {
				t.Errorf("expected %s to answer with its own name, got %v", target, res)
			}
		}
	}
}

// An untargeted signal fans out to every member of the mesh (and to the
// sender's own local listeners).
func TestProtocol_SignalReachesWholeCluster(t *testing.T) {
	cluster := CreateCluster(3, "signal", t)
	defer func() {
		if !WaitThisOrTimeout(cluster.Off, 10*time.Second) {
			t.Error("failed shutdown cluster")
			PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()

	var mu sync.Mutex
	hits := make(map[string]int)
	for i, b := range cluster.Buses {
		name := cluster.Names[i]
		b.On("mesh:event", func(_ interface{}, _ string) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
		}, emitter.Options{})
	}

	if err := cluster.Buses[0].Signal("mesh:event", map[string]interface{}{"n": 1}, ""); err != nil {
		t.Fatalf("failed signaling. %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, name := range cluster.Names {
		if hits[name] != 1 {
			t.Errorf("expected %s to observe the signal exactly once, got %d", name, hits[name])
		}
	}
}

// BroadcastRequest completes independently per peer: one member with no
// handler answers NO_HANDLER while the rest still answer successfully.
func TestProtocol_BroadcastRequestIsIndependentPerPeer(t *testing.T) {
	cluster := CreateCluster(3, "fanout", t)
	defer func() {
		if !WaitThisOrTimeout(cluster.Off, 10*time.Second) {
			t.Error("failed shutdown cluster")
			PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()

	// only the second and third members register the handler
	for i := 1; i < len(cluster.Buses); i++ {
		if err := cluster.Buses[i].Handle("echo", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
			return data, nil
		}, handler.Options{}); err != nil {
			t.Fatalf("failed registering handler. %v", err)
		}
	}

	// the second member asks everyone; the first (handlerless) must fail,
	// the third must answer.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results := cluster.Buses[1].BroadcastRequest(ctx, "echo", "ping", bus.RequestOptions{}, nil, nil)

	if len(results) != 2 {
		t.Fatalf("expected one result per remote peer, got %d", len(results))
	}
	if r := results[cluster.Names[0]]; r.Err == nil {
		t.Errorf("expected the handlerless peer to report an error, got %v", r.Data)
	}
	if r := results[cluster.Names[2]]; r.Err != nil || r.Data != "ping" {
		t.Errorf("expected the handling peer to echo, got data=%v err=%v", r.Data, r.Err)
	}
}
