// Package handshake implements the three-phase INIT/ACK/COMPLETE connect
// sequence: an Init is sent, a correlated Ack is awaited with its own
// deadline, and the outcome drives the connection state transition on both
// sides.
package handshake

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Init is the first-phase payload, sent by the initiator.
type Init struct {
	HandshakeID  string
	PeerID       string
	Capabilities map[string]bool
	Meta         map[string]interface{}
	Version      string
}

// Ack is the responder's reply to Init.
type Ack struct {
	HandshakeID  string
	Accept       bool
	Reason       string
	PeerID       string
	Capabilities map[string]bool
	Meta         map[string]interface{}
	Version      string
}

// Complete is the initiator's final confirmation.
type Complete struct {
	HandshakeID string
}

// Validator decides whether to accept an inbound Init, given the origin
// the transport reported.
type Validator func(origin string, init Init) (accept bool, reason string)

type pendingInit struct {
	init    Init
	target  string
	started time.Time
	timer   *time.Timer
	done    chan Result
}

// Result is delivered to the initiator once the handshake resolves.
type Result struct {
	Accepted bool
	Ack      Ack
	Err      error
}

// Coordinator drives the handshake state machine for one bus. send is how
// the coordinator emits Init/Ack/Complete payloads to a specific peer;
// deliveries (inbound Init/Ack/Complete) are pushed in via HandleInit/
// HandleAck/HandleComplete.
type Coordinator struct {
	mu        sync.Mutex
	localID   string
	localCaps map[string]bool
	localMeta map[string]interface{}
	version   string
	deadline  time.Duration
	validator Validator

	send func(target string, payload interface{}) error

	pendingInits map[string]*pendingInit
	unconfirmed  map[string]bool // handshake ids this side has ACKed and not yet seen a COMPLETE for (responder side)
	onConnected  func(peerID string, ack Ack)
}

// New builds a Coordinator. onConnected is invoked on both sides once a
// handshake reaches COMPLETE.
func New(localID, version string, deadline time.Duration, validator Validator,
	send func(target string, payload interface{}) error,
	onConnected func(peerID string, ack Ack)) *Coordinator {
	return &Coordinator{
		localID:      localID,
		localCaps:    map[string]bool{},
		localMeta:    map[string]interface{}{},
		version:      version,
		deadline:     deadline,
		validator:    validator,
		send:         send,
		pendingInits: make(map[string]*pendingInit),
		unconfirmed:  make(map[string]bool),
		onConnected:  onConnected,
	}
}

// Initiate starts a handshake toward target. The returned channel receives
// exactly one Result.
func (c *Coordinator) Initiate(target string, meta map[string]interface{}) <-chan Result {
	id := uuid.NewString()
	init := Init{
		HandshakeID:  id,
		PeerID:       c.localID,
		Capabilities: c.localCaps,
		Meta:         meta,
		Version:      c.version,
	}
	p := &pendingInit{init: init, target: target, started: time.Now(), done: make(chan Result, 1)}
	c.mu.Lock()
	c.pendingInits[id] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(c.deadline, func() {
		c.completeInit(id, Result{Err: xerrors.From(xerrors.CodeHandshakeTimeout, map[string]interface{}{"handshakeId": id, "target": target})})
	})

	if err := c.send(target, init); err != nil {
		c.completeInit(id, Result{Err: xerrors.Wrap(xerrors.CodeSendFailed, err, map[string]interface{}{"target": target})})
	}
	return p.done
}

func (c *Coordinator) completeInit(id string, res Result) {
	c.mu.Lock()
	p, ok := c.pendingInits[id]
	if ok {
		delete(c.pendingInits, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- res
	close(p.done)
}

// HandleInit processes an inbound Init on the responder side, running the
// origin validator and sending back an Ack.
func (c *Coordinator) HandleInit(origin string, init Init) Ack {
	accept, reason := true, ""
	if c.validator != nil {
		accept, reason = c.validator(origin, init)
	}
	if accept && !versionCompatible(init.Version, c.version) {
		accept, reason = false, "incompatible protocol version"
	}
	ack := Ack{
		HandshakeID:  init.HandshakeID,
		Accept:       accept,
		Reason:       reason,
		PeerID:       c.localID,
		Capabilities: c.localCaps,
		Meta:         c.localMeta,
		Version:      c.version,
	}
	if accept {
		c.mu.Lock()
		c.unconfirmed[init.HandshakeID] = true
		c.mu.Unlock()
	}
	_ = c.send(init.PeerID, ack)
	return ack
}

// HandleAck processes an inbound Ack on the initiator side. If accepted,
// it sends Complete and resolves the pending Initiate with Accepted=true;
// a rejection resolves it with a CodeHandshakeRejected error.
func (c *Coordinator) HandleAck(ack Ack) {
	c.mu.Lock()
	p, ok := c.pendingInits[ack.HandshakeID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if !ack.Accept {
		c.completeInit(ack.HandshakeID, Result{Accepted: false, Ack: ack,
			Err: xerrors.From(xerrors.CodeHandshakeRejected, map[string]interface{}{"reason": ack.Reason})})
		return
	}
	_ = c.send(p.target, Complete{HandshakeID: ack.HandshakeID})
	c.completeInit(ack.HandshakeID, Result{Accepted: true, Ack: ack})
	if c.onConnected != nil {
		c.onConnected(ack.PeerID, ack)
	}
}

// HandleComplete processes an inbound Complete on the responder side.
// Unconfirmed (unknown) Complete messages are ignored.
func (c *Coordinator) HandleComplete(peerID string, complete Complete) {
	c.mu.Lock()
	confirmed := c.unconfirmed[complete.HandshakeID]
	if confirmed {
		delete(c.unconfirmed, complete.HandshakeID)
	}
	c.mu.Unlock()
	if !confirmed {
		return
	}
	if c.onConnected != nil {
		c.onConnected(peerID, Ack{HandshakeID: complete.HandshakeID, Accept: true, PeerID: peerID})
	}
}

func versionCompatible(a, b string) bool {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Segments()[0] == vb.Segments()[0]
}
