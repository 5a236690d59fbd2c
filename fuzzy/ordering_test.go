package fuzzy

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
	"github.com/crossbus-io/crossbus/pkg/crossbus/emitter"
	"github.com/crossbus-io/crossbus/test"
)

// This test will emit one signal a time from a single sender and verify
// that every other member of the mesh observes them in exactly the order
// they were emitted, since each signal carries the sender's vector clock
// and flows through the receiver's causal orderer.
func Test_SequentialSignals(t *testing.T) {
	cluster := test.CreateCluster(2, "sequential", t)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			test.PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()

	sender := cluster.Buses[0]
	receiver := cluster.Buses[1]

	var mu sync.Mutex
	var observed []int
	receiver.On("fuzz:step", func(data interface{}, _ string) {
		payload := data.(map[string]interface{})
		mu.Lock()
		observed = append(observed, payload["seq"].(int))
		mu.Unlock()
	}, emitter.Options{})

	const total = 50
	for i := 0; i < total; i++ {
		if err := sender.Signal("fuzz:step", map[string]interface{}{"seq": i}, ""); err != nil {
			t.Fatalf("failed signaling step %d. %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != total {
		t.Fatalf("expected %d deliveries, got %d", total, len(observed))
	}
	for i, seq := range observed {
		if seq != i {
			t.Fatalf("delivery order broke at position %d: got seq %d. full order: %v", i, seq, observed)
		}
	}
}

// All members of the mesh emit concurrently. Every receiver must observe
// every remote signal exactly once, and each sender's signals in the order
// that sender emitted them; cross-sender interleaving is free.
func Test_ConcurrentSignals(t *testing.T) {
	const clusterSize = 3
	const perSender = 10

	cluster := test.CreateCluster(clusterSize, "concurrent", t)
	defer func() {
		if !test.WaitThisOrTimeout(cluster.Off, 30*time.Second) {
			t.Error("failed shutdown cluster")
			test.PrintStackTrace(t)
		}
		goleak.VerifyNone(t)
	}()

	// observed[receiver][sender] is the sequence of seq values delivered.
	var mu sync.Mutex
	observed := make(map[string]map[string][]int)
	for i, b := range cluster.Buses {
		name := cluster.Names[i]
		observed[name] = make(map[string][]int)
		b.On("fuzz:concurrent", func(data interface{}, _ string) {
			payload := data.(map[string]interface{})
			sender := payload["sender"].(string)
			mu.Lock()
			observed[name][sender] = append(observed[name][sender], payload["seq"].(int))
			mu.Unlock()
		}, emitter.Options{})
	}

	group := sync.WaitGroup{}
	for i, b := range cluster.Buses {
		group.Add(1)
		go func(sender string, b *bus.Bus) {
			defer group.Done()
			for seq := 0; seq < perSender; seq++ {
				if err := b.Signal("fuzz:concurrent", map[string]interface{}{"sender": sender, "seq": seq}, ""); err != nil {
					t.Errorf("%s failed signaling seq %d. %v", sender, seq, err)
				}
			}
		}(cluster.Names[i], b)
	}

	if !test.WaitThisOrTimeout(group.Wait, 30*time.Second) {
		t.Fatal("not all senders finished after 30 seconds")
	}

	// All sends completed synchronously over the loopback, but buffered
	// deliveries drain on whichever sender's goroutine unblocked them; give
	// stragglers a moment before asserting.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if countDeliveries(&mu, observed) == clusterSize*clusterSize*perSender {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for receiver, bySender := range observed {
		for sender, seqs := range bySender {
			if len(seqs) != perSender {
				t.Errorf("%s observed %d signals from %s, expected %d: %v", receiver, len(seqs), sender, perSender, seqs)
				continue
			}
			for i, seq := range seqs {
				if seq != i {
					t.Errorf("%s observed %s out of order at position %d: %v", receiver, sender, i, seqs)
					break
				}
			}
		}
	}
}

func countDeliveries(mu *sync.Mutex, observed map[string]map[string][]int) int {
	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, bySender := range observed {
		for _, seqs := range bySender {
			total += len(seqs)
		}
	}
	return total
}
