package bus

import (
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/router"
)

// presencePublisher adapts a Bus to presence.Publisher: outbound join/leave/
// heartbeat become presence broadcasts, and inbound join/update/leave become
// local events plus (for leave) pending-request teardown for that peer.
type presencePublisher struct {
	bus *Bus
}

func (p *presencePublisher) PublishJoin(meta map[string]interface{}) {
	p.bus.broadcastPresence(presenceJoin, meta)
}

func (p *presencePublisher) PublishLeave() {
	p.bus.broadcastPresence(presenceLeave, nil)
}

func (p *presencePublisher) PublishHeartbeat() {
	p.bus.broadcastPresence(presenceHeartbeat, nil)
}

func (p *presencePublisher) OnJoin(peerID string, meta map[string]interface{}) {
	p.bus.emitterE.Emit("peer:joined", meta, peerID)
}

func (p *presencePublisher) OnUpdate(peerID string, meta map[string]interface{}) {
	p.bus.emitterE.Emit("peer:updated", meta, peerID)
}

func (p *presencePublisher) OnLeave(peerID string) {
	p.bus.pendingTable.CancelForPeer(peerID)
	p.bus.emitterE.Emit("peer:left", nil, peerID)
}

func (b *Bus) broadcastPresence(kind presenceKind, meta map[string]interface{}) {
	env := envelope.NewPresence(envelope.Options{
		Source:  b.opts.PeerID,
		Payload: presencePayload{Kind: kind, Meta: meta},
	})
	b.rt.Broadcast(env, router.BroadcastOptions{})
}
