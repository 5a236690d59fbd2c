package transport

import (
	"testing"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
)

func TestLoopback_SendDeliversToConnectedPeer(t *testing.T) {
	a := NewLoopback("a")
	b := NewLoopback("b")
	ConnectLoopback(a, b)

	var received envelope.Envelope
	var ctx Context
	b.SetOnMessage(func(e envelope.Envelope, c Context) {
		received = e
		ctx = c
	})

	env := envelope.NewSignal(envelope.Options{Source: "a", HandlerName: "ping"})
	if err := a.Send(env, nil); err != nil {
		t.Fatalf("unexpected error sending: %v", err)
	}
	if received.ID() != env.ID() {
		t.Fatalf("expected peer to receive the sent envelope, got id=%s", received.ID())
	}
	if ctx.Origin != "a" {
		t.Fatalf("expected delivered context origin to be the sender's origin, got %q", ctx.Origin)
	}
	if ctx.Reply == nil {
		t.Fatalf("expected the delivered context to carry a reply path")
	}
}

func TestLoopback_SendWithoutConnectionFails(t *testing.T) {
	a := NewLoopback("a")
	err := a.Send(envelope.NewSignal(envelope.Options{}), nil)
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLoopback_SendAfterCloseFails(t *testing.T) {
	a := NewLoopback("a")
	b := NewLoopback("b")
	ConnectLoopback(a, b)
	_ = a.Close()

	if err := a.Send(envelope.NewSignal(envelope.Options{}), nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestLoopback_SendToClosedPeerFails(t *testing.T) {
	a := NewLoopback("a")
	b := NewLoopback("b")
	ConnectLoopback(a, b)
	b.SetOnMessage(func(e envelope.Envelope, c Context) {})
	_ = b.Close()

	if err := a.Send(envelope.NewSignal(envelope.Options{}), nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed when the receiving peer is closed, got %v", err)
	}
}

func TestLoopback_DefaultOriginIsChannel(t *testing.T) {
	l := NewLoopback("")
	peer := NewLoopback("peer")
	ConnectLoopback(l, peer)

	var ctx Context
	peer.SetOnMessage(func(e envelope.Envelope, c Context) { ctx = c })
	_ = l.Send(envelope.NewSignal(envelope.Options{}), nil)

	if ctx.Origin != OriginChannel {
		t.Fatalf("expected default origin %q, got %q", OriginChannel, ctx.Origin)
	}
}
