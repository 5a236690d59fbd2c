package bus

import (
	"context"

	"github.com/crossbus-io/crossbus/pkg/crossbus/clock"
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handshake"
	"github.com/crossbus-io/crossbus/pkg/crossbus/hook"
	"github.com/crossbus-io/crossbus/pkg/crossbus/router"
	"github.com/crossbus-io/crossbus/pkg/crossbus/transport"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// presenceKind tags the one presence envelope type with what kind of
// liveness event it carries.
type presenceKind string

const (
	presenceJoin      presenceKind = "join"
	presenceUpdate    presenceKind = "update"
	presenceHeartbeat presenceKind = "heartbeat"
	presenceLeave     presenceKind = "leave"
)

type presencePayload struct {
	Kind presenceKind
	Meta map[string]interface{}
}

// appMessage is what a signal/broadcast envelope's payload becomes once it
// enters the causal orderer: the event name travels alongside the data so
// deliverOrdered can re-emit it once its preconditions are satisfied.
type appMessage struct {
	Name   string
	Data   interface{}
	Source string
}

// responsePayload is the wire payload of a TypeResponse envelope.
type responsePayload struct {
	Success bool
	Data    interface{}
	Err     *xerrors.Error
}

// Receive is the transport-facing entry point: transports call it whenever
// a frame arrives from a peer. It is the single dispatcher every inbound
// envelope type passes through.
func (b *Bus) Receive(e envelope.Envelope, ctx transport.Context) {
	if b.isDestroyed() {
		return
	}
	if !envelope.IsProtocolMessage(e) {
		b.logger.Warnf("dropped a frame that is not a recognizable crossbus envelope")
		return
	}
	if !envelope.CompatibleVersion(e) {
		b.logger.Warnf("dropped envelope %s from %s: incompatible protocol version", e.ID(), e.Source())
		return
	}
	if !b.opts.originAllowed(ctx.Origin) {
		b.logger.Warnf("rejected frame from disallowed origin %q", ctx.Origin)
		return
	}

	switch e.Type() {
	case envelope.TypeHandshakeInit:
		if init, ok := e.Payload().(handshake.Init); ok {
			b.acceptHandshakeInit(init, ctx)
		}
	case envelope.TypeHandshakeAck:
		if ack, ok := e.Payload().(handshake.Ack); ok {
			b.handshakeCoord.HandleAck(ack)
		}
	case envelope.TypeHandshakeComplete:
		if complete, ok := e.Payload().(handshake.Complete); ok {
			b.handshakeCoord.HandleComplete(e.Source(), complete)
		}
	case envelope.TypePresence:
		b.dispatchPresence(e)
	case envelope.TypePing:
		b.handlePing(e)
	case envelope.TypePong:
		b.peers.Touch(e.Source())
	case envelope.TypeBye:
		b.pendingTable.CancelForPeer(e.Source())
		b.emitterE.Emit("peer:bye", nil, e.Source())
	case envelope.TypeRequest:
		b.dispatchRequest(e)
	case envelope.TypeResponse:
		b.dispatchResponse(e)
	case envelope.TypeSignal, envelope.TypeBroadcast:
		b.dispatchApplicationMessage(e)
	default:
		b.logger.Warnf("unrecognized envelope type %q", e.Type())
	}
}

func (b *Bus) dispatchApplicationMessage(e envelope.Envelope) {
	hookCtx := hook.Context{
		Type:        string(e.Type()),
		LocalPeer:   b.opts.PeerID,
		RemotePeer:  e.Source(),
		HandlerName: e.Name(),
	}
	transformed, ok := b.inbound.Run(hook.DirectionInbound, e.Payload(), hookCtx)
	if !ok {
		return
	}
	if !e.HasVectorClock() {
		b.emitterE.Emit(e.Name(), transformed, e.Source())
		return
	}
	b.orderer.Receive(clock.Deliverable{
		Sender: e.Source(),
		Clock:  e.VectorClock(),
		Value:  appMessage{Name: e.Name(), Data: transformed, Source: e.Source()},
	})
}

func (b *Bus) deliverOrdered(d clock.Deliverable) {
	if msg, ok := d.Value.(appMessage); ok {
		b.emitterE.Emit(msg.Name, msg.Data, msg.Source)
	}
}

func (b *Bus) onOrdererOverflow(dropped clock.Deliverable) {
	b.logger.Warnf("causal orderer buffer overflow: dropped a message from %s", dropped.Sender)
}

func (b *Bus) dispatchRequest(e envelope.Envelope) {
	hookCtx := hook.Context{
		Type:        string(e.Type()),
		LocalPeer:   b.opts.PeerID,
		RemotePeer:  e.Source(),
		HandlerName: e.Name(),
	}
	transformed, ok := b.inbound.Run(hook.DirectionInbound, e.Payload(), hookCtx)
	if !ok {
		return
	}
	req := e
	go func() {
		data, err := b.handlers.Invoke(context.Background(), req.Name(), req.Source(), transformed, b.opts.RequestTimeout)
		b.sendResponse(req, data, err)
	}()
}

func (b *Bus) sendResponse(req envelope.Envelope, data interface{}, err error) {
	payload := responsePayload{Success: err == nil, Data: data}
	if err != nil {
		if xerr, ok := err.(*xerrors.Error); ok {
			payload.Err = xerr
		} else {
			payload.Err = xerrors.Wrap(xerrors.CodeHandlerError, err, nil)
		}
	}
	hookCtx := hook.Context{
		Type:        string(envelope.TypeResponse),
		LocalPeer:   b.opts.PeerID,
		RemotePeer:  req.Source(),
		HandlerName: req.Name(),
	}
	outPayload, ok := b.outbound.Run(hook.DirectionOutbound, payload, hookCtx)
	if !ok {
		return
	}
	resp := envelope.NewResponse(envelope.Options{
		Source:        b.opts.PeerID,
		Destination:   req.Source(),
		CorrelationID: req.CorrelationID(),
		HandlerName:   req.Name(),
		Payload:       outPayload,
	})
	if routeErr := b.rt.Route(req.Source(), resp); routeErr != nil {
		b.logger.Warnf("failed to deliver response for %s to %s: %v", req.Name(), req.Source(), routeErr)
	}
}

func (b *Bus) dispatchResponse(e envelope.Envelope) {
	payload, ok := e.Payload().(responsePayload)
	if !ok {
		return
	}
	b.pendingTable.Resolve(e.CorrelationID(), payload.Success, payload.Data, payload.Err)
}

func (b *Bus) handlePing(e envelope.Envelope) {
	b.peers.Touch(e.Source())
	pong := envelope.NewPong(envelope.Options{Source: b.opts.PeerID, Destination: e.Source()})
	_ = b.rt.Route(e.Source(), pong)
}

func (b *Bus) dispatchPresence(e envelope.Envelope) {
	payload, ok := e.Payload().(presencePayload)
	if !ok {
		return
	}
	switch payload.Kind {
	case presenceJoin:
		b.presenceT.Upsert(e.Source(), payload.Meta, true)
	case presenceUpdate, presenceHeartbeat:
		b.presenceT.Upsert(e.Source(), payload.Meta, false)
	case presenceLeave:
		b.presenceT.Remove(e.Source())
	}
}

// acceptHandshakeInit runs the responder half of the handshake. A peer
// initiating over a transport this bus has never seen is provisionally
// registered with the transport's reply path, so the ACK and everything
// after COMPLETE can reach it; a rejected INIT rolls that registration
// back.
func (b *Bus) acceptHandshakeInit(init handshake.Init, ctx transport.Context) {
	added := false
	if _, known := b.peers.Get(init.PeerID); !known {
		if ctx.Reply == nil {
			b.logger.Warnf("dropping handshake init from unknown peer %s: transport has no reply path", init.PeerID)
			return
		}
		if _, err := b.peers.AddPeer(init.PeerID, ctx.Reply, init.Meta); err != nil {
			b.logger.Warnf("failed to register handshaking peer %s: %v", init.PeerID, err)
			return
		}
		added = true
	}
	ack := b.handshakeCoord.HandleInit(ctx.Origin, init)
	if !ack.Accept && added {
		b.peers.RemovePeer(init.PeerID)
	}
}

// sendHandshakePayload is the Coordinator's send callback: it wraps a
// handshake payload in the matching envelope type and routes it. Handshake
// traffic goes through RouteControl because the counterpart is still in
// the connecting status while the exchange runs.
func (b *Bus) sendHandshakePayload(target string, payload interface{}) error {
	var env envelope.Envelope
	switch v := payload.(type) {
	case handshake.Init:
		env = envelope.NewHandshakeInit(envelope.Options{Source: b.opts.PeerID, Destination: target, Payload: v})
	case handshake.Ack:
		env = envelope.NewHandshakeAck(envelope.Options{Source: b.opts.PeerID, Destination: target, CorrelationID: v.HandshakeID, Payload: v})
	case handshake.Complete:
		env = envelope.NewHandshakeComplete(envelope.Options{Source: b.opts.PeerID, Destination: target, CorrelationID: v.HandshakeID, Payload: v})
	default:
		return xerrors.From(xerrors.CodeUnknown, map[string]interface{}{"reason": "unrecognized handshake payload"})
	}
	return b.rt.RouteControl(target, env)
}

func (b *Bus) onHandshakeConnected(peerID string, ack handshake.Ack) {
	if err := b.peers.SetPeerStatus(peerID, router.StatusConnected); err != nil {
		b.logger.Warnf("handshake with %s completed but no peer record is bound: %v", peerID, err)
		return
	}
	b.emitterE.Emit("peer:connected", ack, peerID)
}

func (b *Bus) onPeerAdded(p router.Peer) { b.emitterE.Emit("peer:added", p, p.ID) }

func (b *Bus) onPeerRemoved(p router.Peer) {
	b.pendingTable.CancelForPeer(p.ID)
	b.emitterE.Emit("peer:removed", p, p.ID)
}

func (b *Bus) onPeerStatus(p router.Peer) { b.emitterE.Emit("peer:status", p, p.ID) }
