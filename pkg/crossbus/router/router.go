package router

import (
	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Router wraps a Table with the unicast/broadcast delivery rules.
type Router struct {
	Table *Table
}

func NewRouter(table *Table) *Router {
	return &Router{Table: table}
}

// Route unicasts envelope to target. An unknown peer fails with
// CodeNoRoute; a non-connected peer fails with CodePeerDisconnected.
// Neither case invokes the transport. On success, the destination's next
// sequence number is assigned before Send is attempted.
func (r *Router) Route(target string, e envelope.Envelope) error {
	return r.route(target, e, true)
}

// RouteControl unicasts handshake traffic to target without requiring the
// connected status; the handshake is what gets a peer to that status in
// the first place. An unknown peer still fails with CodeNoRoute.
func (r *Router) RouteControl(target string, e envelope.Envelope) error {
	return r.route(target, e, false)
}

func (r *Router) route(target string, e envelope.Envelope, requireConnected bool) error {
	p, ok := r.Table.Get(target)
	if !ok {
		return xerrors.From(xerrors.CodeNoRoute, map[string]interface{}{"peer": target})
	}
	if requireConnected && p.Status != StatusConnected {
		return xerrors.From(xerrors.CodePeerDisconnected, map[string]interface{}{"peer": target, "status": string(p.Status)})
	}
	seq, err := r.Table.NextSequence(target)
	if err != nil {
		return err
	}
	stamped := e.WithSequence(seq)
	transferables := envelope.FindTransferables(stamped.Payload())
	if sendErr := p.Send(stamped, transferables); sendErr != nil {
		return xerrors.Wrap(xerrors.CodeSendFailed, sendErr, map[string]interface{}{"peer": target})
	}
	return nil
}

// BroadcastOptions filters which peers a Broadcast reaches.
type BroadcastOptions struct {
	Exclude []string
	Include []string // if non-empty, only these ids are considered
}

// BroadcastResult reports the per-peer outcome of a Broadcast call.
type BroadcastResult struct {
	Sent   []string
	Failed map[string]error
}

// Broadcast iterates the current peer snapshot applying include/exclude
// filters; a per-peer send failure does not abort the broadcast.
func (r *Router) Broadcast(e envelope.Envelope, opts BroadcastOptions) BroadcastResult {
	excluded := toSet(opts.Exclude)
	var included map[string]bool
	if len(opts.Include) > 0 {
		included = toSet(opts.Include)
	}

	result := BroadcastResult{Failed: make(map[string]error)}
	for _, p := range r.Table.Snapshot() {
		if excluded[p.ID] {
			continue
		}
		if included != nil && !included[p.ID] {
			continue
		}
		if err := r.Route(p.ID, e); err != nil {
			result.Failed[p.ID] = err
			continue
		}
		result.Sent = append(result.Sent, p.ID)
	}
	return result
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
