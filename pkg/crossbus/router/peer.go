// Package router implements the peer table and routing operations: the
// bus's address space, per-peer sequence counters, and unicast/broadcast
// delivery with per-destination independent failure.
package router

import (
	"sync"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Status is a peer's connection lifecycle state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// SendFunc is the transport-bound function the core calls to deliver an
// envelope to one peer. transferables is whatever envelope.FindTransferables
// collected from the payload.
type SendFunc func(e envelope.Envelope, transferables []interface{}) error

// Peer is a single entry in the peer table.
type Peer struct {
	ID           string
	Status       Status
	Capabilities map[string]bool
	Meta         map[string]interface{}
	Send         SendFunc
	LastSeen     time.Time

	sequence uint64
}

// Table is the peer address space: a mutex-guarded map plus per-peer
// sequence counters. Every fetch-then-mutate on the table happens inside
// one critical section; callbacks fire outside it on a copied record.
type Table struct {
	mu       sync.Mutex
	peers    map[string]*Peer
	maxPeers int

	onAdded   func(Peer)
	onRemoved func(Peer)
	onStatus  func(Peer)
}

// New builds an empty Table. maxPeers of 0 means unlimited.
func New(maxPeers int, onAdded, onRemoved, onStatus func(Peer)) *Table {
	return &Table{
		peers:     make(map[string]*Peer),
		maxPeers:  maxPeers,
		onAdded:   onAdded,
		onRemoved: onRemoved,
		onStatus:  onStatus,
	}
}

// AddPeer registers a new peer. Duplicate ids and a full table are both
// rejected.
func (t *Table) AddPeer(id string, send SendFunc, meta map[string]interface{}) (*Peer, error) {
	t.mu.Lock()
	if _, exists := t.peers[id]; exists {
		t.mu.Unlock()
		return nil, xerrors.From(xerrors.CodePeerExists, map[string]interface{}{"peer": id})
	}
	if t.maxPeers > 0 && len(t.peers) >= t.maxPeers {
		t.mu.Unlock()
		return nil, xerrors.From(xerrors.CodeMaxPeers, map[string]interface{}{"maxPeers": t.maxPeers})
	}
	p := &Peer{
		ID:           id,
		Status:       StatusConnecting,
		Capabilities: map[string]bool{},
		Meta:         meta,
		Send:         send,
		LastSeen:     time.Now(),
	}
	t.peers[id] = p
	snapshot := *p
	t.mu.Unlock()
	if t.onAdded != nil {
		t.onAdded(snapshot)
	}
	return p, nil
}

// RemovePeer deletes a peer from the table, if present.
func (t *Table) RemovePeer(id string) {
	t.mu.Lock()
	p, ok := t.peers[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.peers, id)
	snapshot := *p
	t.mu.Unlock()
	if t.onRemoved != nil {
		t.onRemoved(snapshot)
	}
}

// SetPeerStatus transitions a peer's status, if it exists.
func (t *Table) SetPeerStatus(id string, status Status) error {
	t.mu.Lock()
	p, ok := t.peers[id]
	if !ok {
		t.mu.Unlock()
		return xerrors.From(xerrors.CodePeerNotFound, map[string]interface{}{"peer": id})
	}
	p.Status = status
	p.LastSeen = time.Now()
	snapshot := *p
	t.mu.Unlock()
	if t.onStatus != nil {
		t.onStatus(snapshot)
	}
	return nil
}

// Touch refreshes a peer's last-seen timestamp (used on inbound ping/pong).
func (t *Table) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.LastSeen = time.Now()
	}
}

// Get returns a copy of the peer record for id, if present.
func (t *Table) Get(id string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Snapshot returns a copy of every peer currently in the table.
func (t *Table) Snapshot() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// Len reports the current peer count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// NextSequence atomically allocates and returns the next sequence number
// for the given destination peer, starting at 1 and strictly increasing
// per destination.
func (t *Table) NextSequence(id string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return 0, xerrors.From(xerrors.CodePeerNotFound, map[string]interface{}{"peer": id})
	}
	p.sequence++
	return p.sequence, nil
}

// GetSequence returns the last sequence number assigned for id, without
// incrementing it.
func (t *Table) GetSequence(id string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		return p.sequence
	}
	return 0
}
