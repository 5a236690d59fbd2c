package transport

import (
	"sync"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
)

// Loopback is a pair-wise in-process transport: Connect wires two Loopback
// instances together so envelopes sent on one are delivered to the other's
// OnMessage callback. It is what router.Peer.Send is backed by in tests
// and the CLI demo, through Bus.ConnectLoopback.
type Loopback struct {
	mu     sync.Mutex
	peer   *Loopback
	cb     OnMessage
	closed bool
	origin string
}

// NewLoopback builds a Loopback reporting ctx.Origin as origin to its peer.
func NewLoopback(origin string) *Loopback {
	if origin == "" {
		origin = OriginChannel
	}
	return &Loopback{origin: origin}
}

// ConnectLoopback wires a and b together bidirectionally.
func ConnectLoopback(a, b *Loopback) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (l *Loopback) SetOnMessage(cb OnMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb = cb
}

// Send delivers e directly to the connected peer's callback. transferables
// are accepted for interface compatibility but ignored: an in-process
// loopback shares memory, so there is nothing to transfer.
func (l *Loopback) Send(e envelope.Envelope, transferables []interface{}) error {
	l.mu.Lock()
	peer := l.peer
	closed := l.closed
	origin := l.origin
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if peer == nil {
		return ErrNotConnected
	}
	peer.mu.Lock()
	cb := peer.cb
	peerClosed := peer.closed
	peer.mu.Unlock()
	if peerClosed || cb == nil {
		return ErrClosed
	}
	cb(e, Context{Origin: origin, Reply: peer.Send})
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// sentinel errors for the loopback transport only; core errors live in
// xerrors and are constructed by the router/bus layers that call Send.
type loopbackError string

func (e loopbackError) Error() string { return string(e) }

const (
	ErrClosed       = loopbackError("loopback transport closed")
	ErrNotConnected = loopbackError("loopback transport not connected to a peer")
)
