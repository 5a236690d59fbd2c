// Package bus composes every CrossBus component into the public facade:
// one struct owning the peer table, pending requests, handlers, hooks,
// handshake, presence, clock and emitter, with a single Receive switch
// driving inbound dispatch over the envelope type tag and a destroyed flag
// guarding every public operation.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/clock"
	"github.com/crossbus-io/crossbus/pkg/crossbus/definition"
	"github.com/crossbus-io/crossbus/pkg/crossbus/emitter"
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handler"
	"github.com/crossbus-io/crossbus/pkg/crossbus/handshake"
	"github.com/crossbus-io/crossbus/pkg/crossbus/hook"
	"github.com/crossbus-io/crossbus/pkg/crossbus/pending"
	"github.com/crossbus-io/crossbus/pkg/crossbus/presence"
	"github.com/crossbus-io/crossbus/pkg/crossbus/router"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Bus is one CrossBus node: a peer table, a pending-request table, a
// handler registry, inbound/outbound hook pipelines, a handshake
// coordinator, a presence tracker, a vector clock with its causal orderer,
// and a local event emitter, wired together behind one public surface.
type Bus struct {
	mu        sync.RWMutex
	destroyed bool
	startedAt time.Time

	opts   Options
	logger definition.Logger

	peers          *router.Table
	rt             *router.Router
	pendingTable   *pending.Table
	handlers       *handler.Registry
	inbound        *hook.Pipeline
	outbound       *hook.Pipeline
	handshakeCoord *handshake.Coordinator
	presenceT      *presence.Tracker
	vclock         *clock.Vector
	orderer        *clock.Orderer
	emitterE       *emitter.Emitter
}

// New builds a Bus from opts, applying defaults for anything left zero.
func New(opts Options) (*Bus, error) {
	opts = opts.withDefaults()
	if !opts.IsHub && opts.MaxPeers <= 0 {
		opts.MaxPeers = 1
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := &Bus{opts: opts, logger: opts.Logger, startedAt: time.Now()}

	b.emitterE = emitter.New(nil)
	b.emitterE.OnPanic = func(name string, recovered interface{}) {
		b.logger.Errorf("listener for %q panicked: %v", name, recovered)
	}

	b.peers = router.New(opts.MaxPeers, b.onPeerAdded, b.onPeerRemoved, b.onPeerStatus)
	b.rt = router.NewRouter(b.peers)
	b.pendingTable = pending.New(opts.MaxPendingRequests)
	b.handlers = handler.New()
	b.inbound = hook.NewPipeline(func(err error) { b.logger.Warnf("inbound hook error: %v", err) })
	b.outbound = hook.NewPipeline(func(err error) { b.logger.Warnf("outbound hook error: %v", err) })

	validator := opts.HandshakeValidator
	if validator == nil {
		validator = opts.defaultValidator()
	}
	b.handshakeCoord = handshake.New(
		opts.PeerID,
		fmt.Sprintf("%d.0.0", envelope.Version),
		opts.AckTimeout,
		validator,
		b.sendHandshakePayload,
		b.onHandshakeConnected,
	)

	b.vclock = clock.New(opts.PeerID)
	b.orderer = clock.NewOrderer(b.vclock, opts.OrdererBufferSize, b.deliverOrdered, b.onOrdererOverflow)

	b.presenceT = presence.New(opts.PresenceTimeout, opts.PresenceInterval, &presencePublisher{bus: b})
	b.presenceT.Start(nil)

	return b, nil
}

// NewSecure enforces strict mode and refuses to construct a bus whose
// allowedOrigins is empty or carries a wildcard.
func NewSecure(opts Options) (*Bus, error) {
	opts.StrictMode = true
	if len(opts.AllowedOrigins) == 0 {
		return nil, xerrors.From(xerrors.CodeOriginForbidden, map[string]interface{}{
			"reason": "createSecure requires a non-empty allowedOrigins list",
		})
	}
	return New(opts)
}

// ID returns this bus's own peer id.
func (b *Bus) ID() string { return b.opts.PeerID }

// Logger returns the logger this bus was constructed with, for callers that
// want to log consistently with it (e.g. the admin server, the CLI demo).
func (b *Bus) Logger() definition.Logger { return b.logger }

func (b *Bus) isDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}

// Destroy idempotently tears down the bus: cancels every pending request,
// stops presence (publishing a final leave), clears the peer table, and
// discards every listener. Any public operation attempted afterward fails
// with CodeDestroyed.
func (b *Bus) Destroy() error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	b.mu.Unlock()

	b.presenceT.Stop()
	b.pendingTable.CancelAll()
	for _, p := range b.peers.Snapshot() {
		b.peers.RemovePeer(p.ID)
	}
	b.emitterE = emitter.New(nil)
	return nil
}
