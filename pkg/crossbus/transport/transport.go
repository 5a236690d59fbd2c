// Package transport defines the contract any message bearer must satisfy
// to carry CrossBus envelopes, and provides the in-process loopback
// implementation that Bus.ConnectLoopback, tests and demos use.
package transport

import (
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
)

// Context carries metadata about where an inbound frame came from: a
// string origin identifying the sender's security domain, or one of the
// synthetic origins for transports without a notion of it. Reply, when the
// transport can provide one, sends an envelope back to whoever produced
// this frame; the bus binds it as the send function of a peer first met
// through a handshake init.
type Context struct {
	Origin string
	Reply  func(e envelope.Envelope, transferables []interface{}) error
}

const (
	OriginBroadcast     = "broadcast"
	OriginWorker        = "worker"
	OriginChannel       = "channel"
	OriginServiceWorker = "serviceworker"
)

// OnMessage is the core-supplied callback a transport invokes when a frame
// arrives.
type OnMessage func(e envelope.Envelope, ctx Context)

// Transport is any object that can deliver envelopes and invoke a
// core-supplied callback when a frame arrives. The core never interprets
// the transport's wire format; it only requires that the delivered value
// satisfies envelope.IsProtocolMessage.
type Transport interface {
	Send(e envelope.Envelope, transferables []interface{}) error
	SetOnMessage(cb OnMessage)
	Close() error
}
