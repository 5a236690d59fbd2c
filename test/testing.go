package test

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
)

// BusCluster is a fully-meshed set of in-process busses wired pairwise over
// the loopback transport. Every bus is a hub so it can hold the whole mesh
// in its peer table.
type BusCluster struct {
	T     *testing.T
	Names []string
	Buses []*bus.Bus
	mutex *sync.Mutex
	group *sync.WaitGroup
	index int
}

func (c *BusCluster) Off() {
	for _, b := range c.Buses {
		c.group.Add(1)
		go c.PoweroffBus(b)
	}

	c.group.Wait()
}

func CreateBus(name string, t *testing.T) *bus.Bus {
	b, err := bus.New(bus.Options{PeerID: name, IsHub: true})
	if err != nil {
		t.Fatalf("failed creating bus %s. %v", name, err)
	}
	return b
}

func CreateCluster(clusterSize int, prefix string, t *testing.T) *BusCluster {
	cluster := &BusCluster{
		T:     t,
		group: &sync.WaitGroup{},
		mutex: &sync.Mutex{},
		Names: make([]string, clusterSize),
	}
	var buses []*bus.Bus
	for i := 0; i < clusterSize; i++ {
		name := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
		cluster.Names[i] = name
		buses = append(buses, CreateBus(name, t))
	}
	for i := 0; i < clusterSize; i++ {
		for j := i + 1; j < clusterSize; j++ {
			if err := buses[i].ConnectLoopback(buses[j], nil); err != nil {
				t.Fatalf("failed connecting %s to %s. %v", cluster.Names[i], cluster.Names[j], err)
			}
		}
	}
	cluster.Buses = buses
	return cluster
}

func (c *BusCluster) Next() *bus.Bus {
	c.mutex.Lock()
	defer func() {
		c.index += 1
		c.mutex.Unlock()
	}()

	if c.index >= len(c.Buses) {
		c.index = 0
	}

	return c.Buses[c.index]
}

func (c *BusCluster) PoweroffBus(b *bus.Bus) {
	defer c.group.Done()
	_ = b.Destroy()
}

func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	t.Errorf("%s", buf)
}

func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan bool)
	go func() {
		cb()
		done <- true
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}
