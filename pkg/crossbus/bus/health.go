package bus

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/crossbus-io/crossbus/pkg/crossbus/router"
)

// HealthSnapshot is the result of HealthCheck.
type HealthSnapshot struct {
	PeerID          string
	Destroyed       bool
	Peers           []router.Peer
	Handlers        []string
	PendingRequests int
	Uptime          time.Duration
	UptimeHuman     string
	MemoryAlloc     uint64
	MemoryHuman     string
}

// HealthCheck reports this bus's current status, peer list, handler list,
// uptime, and memory usage (the host exposes it, via runtime.MemStats).
func (b *Bus) HealthCheck() HealthSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	uptime := time.Since(b.startedAt)
	return HealthSnapshot{
		PeerID:          b.opts.PeerID,
		Destroyed:       b.isDestroyed(),
		Peers:           b.peers.Snapshot(),
		Handlers:        b.handlers.Names(),
		PendingRequests: b.pendingTable.Len(),
		Uptime:          uptime,
		UptimeHuman:     humanize.Time(b.startedAt),
		MemoryAlloc:     mem.Alloc,
		MemoryHuman:     humanize.Bytes(mem.Alloc),
	}
}

// Diagnosis is the result of Diagnose.
type Diagnosis struct {
	Issues      []string
	Warnings    []string
	Suggestions []string
}

// Diagnose runs a lightweight self-assessment over the bus's current
// state, meant to help an operator spot trouble before it pages anyone.
func (b *Bus) Diagnose() Diagnosis {
	var d Diagnosis
	if b.isDestroyed() {
		d.Issues = append(d.Issues, "bus has been destroyed")
		return d
	}

	snap := b.HealthCheck()
	if len(snap.Peers) == 0 {
		d.Warnings = append(d.Warnings, "no peers registered")
	}
	for _, p := range snap.Peers {
		if p.Status != router.StatusConnected {
			d.Issues = append(d.Issues, fmt.Sprintf("peer %s is in status %s", p.ID, p.Status))
		}
	}
	if b.opts.MaxPendingRequests > 0 {
		ratio := float64(snap.PendingRequests) / float64(b.opts.MaxPendingRequests)
		if ratio > 0.8 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("pending request table at %.0f%% of its configured maximum", ratio*100))
		}
	}
	if dropped := b.pendingTable.DroppedLateResponses(); dropped > 0 {
		d.Suggestions = append(d.Suggestions, fmt.Sprintf("%d late responses arrived after their request already completed; consider raising requestTimeout", dropped))
	}
	if len(snap.Handlers) == 0 {
		d.Suggestions = append(d.Suggestions, "no handlers registered; request/broadcastRequest will fail with NO_HANDLER")
	}
	if b.orderer.Len() > 0 {
		d.Warnings = append(d.Warnings, fmt.Sprintf("causal orderer is holding %d message(s) awaiting delivery preconditions", b.orderer.Len()))
	}
	return d
}
