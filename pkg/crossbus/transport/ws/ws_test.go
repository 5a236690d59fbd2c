package ws

import (
	"testing"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
)

func TestWireRoundTrip_PreservesEnvelopeFields(t *testing.T) {
	original := envelope.NewRequest(envelope.Options{
		Source:        "node-a",
		Destination:   "node-b",
		CorrelationID: "corr-1",
		HandlerName:   "echo",
		TraceID:       "trace-1",
		Payload:       map[string]interface{}{"n": float64(42)},
		VectorClock:   map[string]uint64{"node-a": 3},
	}).WithSequence(7)

	w := toWire(original)
	restored := fromWire(w)

	if restored.ID() != original.ID() {
		t.Fatalf("expected id to round-trip, got %q want %q", restored.ID(), original.ID())
	}
	if restored.Type() != original.Type() {
		t.Fatalf("expected type to round-trip, got %q want %q", restored.Type(), original.Type())
	}
	if restored.Source() != original.Source() || restored.Destination() != original.Destination() {
		t.Fatalf("expected source/destination to round-trip")
	}
	if restored.Sequence() != 7 {
		t.Fatalf("expected sequence to round-trip, got %d", restored.Sequence())
	}
	if restored.HandlerName() != "echo" {
		t.Fatalf("expected handler name to round-trip, got %q", restored.HandlerName())
	}
	if restored.VectorClock()["node-a"] != 3 {
		t.Fatalf("expected vector clock to round-trip, got %v", restored.VectorClock())
	}
	if !envelope.IsProtocolMessage(restored) {
		t.Fatalf("expected the restored envelope to be a recognized protocol message")
	}
}

func TestWireRoundTrip_SignalCarriesHandlerNameAsEventName(t *testing.T) {
	original := envelope.NewSignal(envelope.Options{Source: "a", HandlerName: "demo:ping"})
	restored := fromWire(toWire(original))
	if restored.Name() != "demo:ping" {
		t.Fatalf("expected event name to round-trip through the name/handler alias, got %q", restored.Name())
	}
}
