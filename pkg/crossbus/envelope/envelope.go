// Package envelope defines the CrossBus wire record and its builders.
// Envelopes are produced only by the constructors in this file; every
// constructor deep-copies its payload so the returned value shares no
// mutable state with the caller and the payload tree stays frozen from
// construction to emission.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Marker is the small protocol marker every CrossBus envelope carries.
const Marker = "crossbus"

// Version is the protocol version this build speaks.
const Version = 1

// Type is the envelope type tag.
type Type string

const (
	TypeSignal            Type = "signal"
	TypeBroadcast         Type = "broadcast"
	TypeRequest           Type = "request"
	TypeResponse          Type = "response"
	TypeHandshakeInit     Type = "handshake-init"
	TypeHandshakeAck      Type = "handshake-ack"
	TypeHandshakeComplete Type = "handshake-complete"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
	TypeBye               Type = "bye"
	TypePresence          Type = "presence"
)

// Envelope is the immutable record crossing the bus. Only the constructors
// in this package build one; no exported method mutates a field.
type Envelope struct {
	marker        string
	version       int
	id            string
	typ           Type
	sequence      uint64
	timestamp     time.Time
	source        string
	destination   string
	correlationID string
	vectorClock   map[string]uint64
	payload       interface{}
	traceID       string
	handlerName   string
}

func (e Envelope) Marker() string        { return e.marker }
func (e Envelope) Version() int          { return e.version }
func (e Envelope) ID() string            { return e.id }
func (e Envelope) Type() Type            { return e.typ }
func (e Envelope) Sequence() uint64      { return e.sequence }
func (e Envelope) Timestamp() time.Time  { return e.timestamp }
func (e Envelope) Source() string        { return e.source }
func (e Envelope) Destination() string   { return e.destination }
func (e Envelope) HasDestination() bool  { return e.destination != "" }
func (e Envelope) CorrelationID() string { return e.correlationID }
func (e Envelope) HandlerName() string   { return e.handlerName }

// Name returns the same underlying field as HandlerName. Signal and
// broadcast envelopes use it as the event name; request envelopes use it
// as the target handler name. One field serves both because an envelope
// is never both at once.
func (e Envelope) Name() string         { return e.handlerName }
func (e Envelope) HasVectorClock() bool { return e.vectorClock != nil }
func (e Envelope) Payload() interface{} { return clone(e.payload) }

// VectorClock returns a defensive copy of the embedded clock snapshot, or
// nil if this envelope carries none.
func (e Envelope) VectorClock() map[string]uint64 {
	if e.vectorClock == nil {
		return nil
	}
	out := make(map[string]uint64, len(e.vectorClock))
	for k, v := range e.vectorClock {
		out[k] = v
	}
	return out
}

func (e Envelope) TraceID() string { return e.traceID }

// WithSequence returns a copy of the envelope carrying the given sequence
// number. Used by the router, which is the only component allowed to
// assign sequence numbers (builders leave it at zero).
func (e Envelope) WithSequence(seq uint64) Envelope {
	e.sequence = seq
	return e
}

// WithVectorClock returns a copy of the envelope stamped with a clock
// snapshot.
func (e Envelope) WithVectorClock(clk map[string]uint64) Envelope {
	cp := make(map[string]uint64, len(clk))
	for k, v := range clk {
		cp[k] = v
	}
	e.vectorClock = cp
	return e
}

// WithPayload returns a copy of the envelope with its payload replaced,
// re-freezing the new payload. The receiver is left unchanged.
func (e Envelope) WithPayload(payload interface{}) Envelope {
	e.payload = clone(payload)
	return e
}

// Builder options shared by every constructor.
type Options struct {
	ID            string
	Source        string
	Destination   string
	CorrelationID string
	Payload       interface{}
	TraceID       string
	HandlerName   string
	VectorClock   map[string]uint64
}

func newEnvelope(t Type, opts Options) Envelope {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	var vc map[string]uint64
	if opts.VectorClock != nil {
		vc = make(map[string]uint64, len(opts.VectorClock))
		for k, v := range opts.VectorClock {
			vc[k] = v
		}
	}
	return Envelope{
		marker:        Marker,
		version:       Version,
		id:            id,
		typ:           t,
		timestamp:     time.Now(),
		source:        opts.Source,
		destination:   opts.Destination,
		correlationID: opts.CorrelationID,
		vectorClock:   vc,
		payload:       clone(opts.Payload),
		traceID:       opts.TraceID,
		handlerName:   opts.HandlerName,
	}
}

// New builds an envelope of an arbitrary type. It exists for transports
// that must reconstruct an envelope from a wire format carrying its own
// type tag (e.g. transport/ws); code within this module should prefer the
// typed constructors below.
func New(t Type, opts Options) Envelope { return newEnvelope(t, opts) }

func NewSignal(opts Options) Envelope            { return newEnvelope(TypeSignal, opts) }
func NewBroadcast(opts Options) Envelope         { return newEnvelope(TypeBroadcast, opts) }
func NewRequest(opts Options) Envelope           { return newEnvelope(TypeRequest, opts) }
func NewResponse(opts Options) Envelope          { return newEnvelope(TypeResponse, opts) }
func NewHandshakeInit(opts Options) Envelope     { return newEnvelope(TypeHandshakeInit, opts) }
func NewHandshakeAck(opts Options) Envelope      { return newEnvelope(TypeHandshakeAck, opts) }
func NewHandshakeComplete(opts Options) Envelope { return newEnvelope(TypeHandshakeComplete, opts) }
func NewPing(opts Options) Envelope              { return newEnvelope(TypePing, opts) }
func NewPong(opts Options) Envelope              { return newEnvelope(TypePong, opts) }
func NewBye(opts Options) Envelope               { return newEnvelope(TypeBye, opts) }
func NewPresence(opts Options) Envelope          { return newEnvelope(TypePresence, opts) }

var recognizedTypes = map[Type]bool{
	TypeSignal: true, TypeBroadcast: true, TypeRequest: true, TypeResponse: true,
	TypeHandshakeInit: true, TypeHandshakeAck: true, TypeHandshakeComplete: true,
	TypePing: true, TypePong: true, TypeBye: true, TypePresence: true,
}

// IsProtocolMessage reports whether x is recognizable as a CrossBus
// envelope: it must carry the marker, an id and a recognized type tag. The
// version is not checked here; CompatibleVersion checks it separately, so
// callers can tell a version mismatch apart from an unrecognizable frame.
func IsProtocolMessage(x interface{}) bool {
	e, ok := x.(Envelope)
	if !ok {
		if p, ok2 := x.(*Envelope); ok2 && p != nil {
			e = *p
		} else {
			return false
		}
	}
	if e.marker != Marker {
		return false
	}
	if e.id == "" {
		return false
	}
	if !recognizedTypes[e.typ] {
		return false
	}
	return true
}

// CompatibleVersion reports whether the envelope's version can be handled
// by this build. Bus.Receive checks it before processing an inbound frame
// and drops a mismatching one.
func CompatibleVersion(e Envelope) bool {
	return e.version == Version
}
