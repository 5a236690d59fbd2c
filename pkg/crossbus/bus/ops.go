package bus

import (
	"context"
	"sync"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/emitter"
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handler"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handshake"
	"github.com/crossbus-io/crossbus/pkg/crossbus/hook"
	"github.com/crossbus-io/crossbus/pkg/crossbus/router"
	"github.com/crossbus-io/crossbus/pkg/crossbus/transport"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Signal emits name locally and, if target is non-empty, unicasts it to
// that one peer; an empty target broadcasts to every known peer.
func (b *Bus) Signal(name string, data interface{}, target string) error {
	if b.isDestroyed() {
		return xerrors.From(xerrors.CodeDestroyed, nil)
	}
	hookCtx := hook.Context{Type: string(envelope.TypeSignal), LocalPeer: b.opts.PeerID, RemotePeer: target, HandlerName: name}
	transformed, ok := b.outbound.Run(hook.DirectionOutbound, data, hookCtx)
	if !ok {
		return nil
	}
	b.emitterE.Emit(name, transformed, "")

	opts := envelope.Options{Source: b.opts.PeerID, HandlerName: name, Payload: transformed, VectorClock: b.vclock.Tick()}
	if target != "" {
		opts.Destination = target
		return b.rt.Route(target, envelope.NewSignal(opts))
	}
	b.rt.Broadcast(envelope.NewSignal(opts), router.BroadcastOptions{})
	return nil
}

// Broadcast emits name locally and fans it out to every peer not excluded
// (or, if include is non-empty, to only those peers). A per-peer send
// failure does not abort the rest of the fan-out.
func (b *Bus) Broadcast(name string, data interface{}, exclude, include []string) (router.BroadcastResult, error) {
	if b.isDestroyed() {
		return router.BroadcastResult{}, xerrors.From(xerrors.CodeDestroyed, nil)
	}
	hookCtx := hook.Context{Type: string(envelope.TypeBroadcast), LocalPeer: b.opts.PeerID, HandlerName: name}
	transformed, ok := b.outbound.Run(hook.DirectionOutbound, data, hookCtx)
	if !ok {
		return router.BroadcastResult{}, nil
	}
	b.emitterE.Emit(name, transformed, "")
	env := envelope.NewBroadcast(envelope.Options{Source: b.opts.PeerID, HandlerName: name, Payload: transformed, VectorClock: b.vclock.Tick()})
	return b.rt.Broadcast(env, router.BroadcastOptions{Exclude: exclude, Include: include}), nil
}

// RequestOptions configures a single request call.
type RequestOptions struct {
	// Timeout overrides the bus's default RequestTimeout for this call.
	Timeout time.Duration
}

// Request sends a request for handler name to target and blocks until a
// matching response arrives, the context is cancelled, or the request's
// deadline elapses.
func (b *Bus) Request(ctx context.Context, target, name string, data interface{}, opts RequestOptions) (interface{}, error) {
	if b.isDestroyed() {
		return nil, xerrors.From(xerrors.CodeDestroyed, nil)
	}
	hookCtx := hook.Context{Type: string(envelope.TypeRequest), LocalPeer: b.opts.PeerID, RemotePeer: target, HandlerName: name}
	transformed, ok := b.outbound.Run(hook.DirectionOutbound, data, hookCtx)
	if !ok {
		return nil, xerrors.From(xerrors.CodeSendFailed, map[string]interface{}{"reason": "request payload dropped by an outbound hook"})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.opts.RequestTimeout
	}
	id, promise, err := b.pendingTable.Create(target, name, timeout)
	if err != nil {
		return nil, err
	}

	env := envelope.NewRequest(envelope.Options{
		ID: id, Source: b.opts.PeerID, Destination: target,
		CorrelationID: id, HandlerName: name, Payload: transformed,
	})
	if err := b.rt.Route(target, env); err != nil {
		b.pendingTable.Reject(id, err)
		return nil, err
	}

	select {
	case <-promise.Done():
		return promise.Value()
	case <-ctx.Done():
		b.pendingTable.Cancel(id, ctx.Err().Error())
		return nil, xerrors.Wrap(xerrors.CodeCancelled, ctx.Err(), map[string]interface{}{"requestId": id})
	}
}

// RequestResult is one peer's outcome within a BroadcastRequest.
type RequestResult struct {
	Data interface{}
	Err  error
}

// BroadcastRequest issues Request to every known peer (minus exclude, or
// only include when non-empty) concurrently; each peer's completion is
// independent of the others.
func (b *Bus) BroadcastRequest(ctx context.Context, name string, data interface{}, opts RequestOptions, exclude, include []string) map[string]RequestResult {
	excluded := toSet(exclude)
	var included map[string]bool
	if len(include) > 0 {
		included = toSet(include)
	}

	results := make(map[string]RequestResult)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range b.peers.Snapshot() {
		if excluded[p.ID] {
			continue
		}
		if included != nil && !included[p.ID] {
			continue
		}
		wg.Add(1)
		go func(peerID string) {
			defer wg.Done()
			res, err := b.Request(ctx, peerID, name, data, opts)
			mu.Lock()
			results[peerID] = RequestResult{Data: res, Err: err}
			mu.Unlock()
		}(p.ID)
	}
	wg.Wait()
	return results
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// Handle registers fn under name.
func (b *Bus) Handle(name string, fn handler.Fn, opts handler.Options) error {
	if b.isDestroyed() {
		return xerrors.From(xerrors.CodeDestroyed, nil)
	}
	return b.handlers.Handle(name, fn, opts)
}

// RemoveHandler unregisters name, if present.
func (b *Bus) RemoveHandler(name string) {
	if b.isDestroyed() {
		return
	}
	b.handlers.RemoveHandler(name)
}

// AddPeer registers a new peer with its transport-bound send function. A
// non-hub bus (IsHub false) is limited to one peer unless MaxPeers was set
// explicitly at construction; a hub accepts peers up to MaxPeers.
func (b *Bus) AddPeer(id string, send router.SendFunc, meta map[string]interface{}) (*router.Peer, error) {
	if b.isDestroyed() {
		return nil, xerrors.From(xerrors.CodeDestroyed, nil)
	}
	p, err := b.peers.AddPeer(id, send, meta)
	if err != nil {
		return nil, err
	}
	_ = b.peers.SetPeerStatus(id, router.StatusConnected)
	return p, nil
}

// RemovePeer deletes a peer and cancels any request still pending against
// it.
func (b *Bus) RemovePeer(id string) {
	if b.isDestroyed() {
		return
	}
	b.pendingTable.CancelForPeer(id)
	b.peers.RemovePeer(id)
}

// Connect registers target with its transport-bound send function and
// drives the full handshake toward it: INIT out, ACK back, COMPLETE out.
// The peer starts out connecting and reaches the connected status only
// once the responder accepts; rejection, the ack deadline, or a cancelled
// context rolls the registration back. AddPeer remains the direct path for
// peers that need no handshake.
func (b *Bus) Connect(ctx context.Context, target string, send router.SendFunc, meta map[string]interface{}) (handshake.Ack, error) {
	if b.isDestroyed() {
		return handshake.Ack{}, xerrors.From(xerrors.CodeDestroyed, nil)
	}
	if _, err := b.peers.AddPeer(target, send, meta); err != nil {
		return handshake.Ack{}, err
	}
	select {
	case res := <-b.handshakeCoord.Initiate(target, meta):
		if res.Err != nil {
			b.peers.RemovePeer(target)
			return handshake.Ack{}, res.Err
		}
		return res.Ack, nil
	case <-ctx.Done():
		b.peers.RemovePeer(target)
		return handshake.Ack{}, xerrors.Wrap(xerrors.CodeCancelled, ctx.Err(), map[string]interface{}{"peer": target})
	}
}

// AddInboundHook registers fn on the inbound pipeline at the given
// priority (lower runs first). A destroyed bus refuses the registration
// and returns the zero ID.
func (b *Bus) AddInboundHook(priority int, fn hook.Fn) hook.ID {
	if b.isDestroyed() {
		return 0
	}
	return b.inbound.Add(priority, fn)
}

// AddOutboundHook registers fn on the outbound pipeline.
func (b *Bus) AddOutboundHook(priority int, fn hook.Fn) hook.ID {
	if b.isDestroyed() {
		return 0
	}
	return b.outbound.Add(priority, fn)
}

// RemoveHook unregisters a hook previously added to the given direction.
func (b *Bus) RemoveHook(direction hook.Direction, id hook.ID) {
	if b.isDestroyed() {
		return
	}
	if direction == hook.DirectionInbound {
		b.inbound.Remove(id)
		return
	}
	b.outbound.Remove(id)
}

// On registers a local listener, re-exporting the emitter. A destroyed bus
// refuses the registration and returns the zero ID.
func (b *Bus) On(name string, fn emitter.Fn, opts emitter.Options) emitter.ListenerID {
	if b.isDestroyed() {
		return 0
	}
	return b.emitterE.On(name, fn, opts)
}

// Off removes a local listener.
func (b *Bus) Off(name string, id emitter.ListenerID) {
	if b.isDestroyed() {
		return
	}
	b.emitterE.Off(name, id)
}

// Emit fires name to local listeners only, without touching the router.
func (b *Bus) Emit(name string, data interface{}) {
	if b.isDestroyed() {
		return
	}
	b.emitterE.Emit(name, data, "")
}

// ConnectLoopback wires this bus to remote over a pair of in-process
// Loopback transports and registers each as the other's peer. It is the
// convenience path tests and the CLI demo use instead of standing up a real
// transport.
func (b *Bus) ConnectLoopback(remote *Bus, meta map[string]interface{}) error {
	near := transport.NewLoopback(transport.OriginChannel)
	far := transport.NewLoopback(transport.OriginChannel)
	transport.ConnectLoopback(near, far)
	near.SetOnMessage(b.Receive)
	far.SetOnMessage(remote.Receive)

	if _, err := b.AddPeer(remote.ID(), near.Send, meta); err != nil {
		return err
	}
	if _, err := remote.AddPeer(b.ID(), far.Send, meta); err != nil {
		b.RemovePeer(remote.ID())
		return err
	}
	return nil
}
