// Package ws is a reference transport.Transport implementation over
// github.com/gorilla/websocket: a read pump refreshing a deadline on every
// pong, and periodic pings written on their own ticker.
//
// Envelope payloads cross this transport JSON-encoded. Application-level
// signal/broadcast/request data (maps, slices, scalars) round-trips
// exactly; CrossBus's own internal protocol payloads (handshake, presence)
// do not survive a JSON round trip back into their original Go struct type
// and are out of scope for this reference transport. The in-process
// Loopback transport is what the bus's own protocol messages are exercised
// over in tests and the CLI demo.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossbus-io/crossbus/pkg/crossbus/envelope"
	"github.com/crossbus-io/crossbus/pkg/crossbus/transport"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// wireEnvelope is the JSON shape an envelope crosses the socket as.
type wireEnvelope struct {
	Marker        string            `json:"marker"`
	Version       int               `json:"version"`
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Sequence      uint64            `json:"sequence"`
	Source        string            `json:"source"`
	Destination   string            `json:"destination,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	VectorClock   map[string]uint64 `json:"vectorClock,omitempty"`
	Payload       interface{}       `json:"payload,omitempty"`
	TraceID       string            `json:"traceId,omitempty"`
	HandlerName   string            `json:"handlerName,omitempty"`
}

func toWire(e envelope.Envelope) wireEnvelope {
	return wireEnvelope{
		Marker:        e.Marker(),
		Version:       e.Version(),
		ID:            e.ID(),
		Type:          string(e.Type()),
		Sequence:      e.Sequence(),
		Source:        e.Source(),
		Destination:   e.Destination(),
		CorrelationID: e.CorrelationID(),
		VectorClock:   e.VectorClock(),
		Payload:       e.Payload(),
		TraceID:       e.TraceID(),
		HandlerName:   e.HandlerName(),
	}
}

func fromWire(w wireEnvelope) envelope.Envelope {
	e := envelope.New(envelope.Type(w.Type), envelope.Options{
		ID:            w.ID,
		Source:        w.Source,
		Destination:   w.Destination,
		CorrelationID: w.CorrelationID,
		Payload:       w.Payload,
		TraceID:       w.TraceID,
		HandlerName:   w.HandlerName,
		VectorClock:   w.VectorClock,
	})
	return e.WithSequence(w.Sequence)
}

// Upgrader is exposed so a host HTTP server can tune buffer sizes/origin
// checks before handing a connection to Accept.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport adapts one *websocket.Conn to transport.Transport.
type Transport struct {
	conn   *websocket.Conn
	origin string

	writeMu sync.Mutex
	cbMu    sync.Mutex
	cb      transport.OnMessage

	closeOnce sync.Once
	closed    chan struct{}
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// returns a Transport wrapping it, reporting origin as the Context.Origin
// of every frame it delivers.
func Accept(w http.ResponseWriter, r *http.Request, origin string) (*Transport, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(conn, origin), nil
}

// Dial opens an outbound websocket connection to url.
func Dial(url, origin string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return New(conn, origin), nil
}

// New wraps an already-established connection.
func New(conn *websocket.Conn, origin string) *Transport {
	if origin == "" {
		origin = transport.OriginChannel
	}
	t := &Transport{conn: conn, origin: origin, closed: make(chan struct{})}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.readPump()
	go t.pingPump()
	return t
}

func (t *Transport) SetOnMessage(cb transport.OnMessage) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.cb = cb
}

func (t *Transport) readPump() {
	defer t.Close()
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		var w wireEnvelope
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		if w.Marker != envelope.Marker || w.Version != envelope.Version {
			continue
		}
		e := fromWire(w)
		if !envelope.IsProtocolMessage(e) {
			continue
		}
		t.cbMu.Lock()
		cb := t.cb
		t.cbMu.Unlock()
		if cb != nil {
			cb(e, transport.Context{Origin: t.origin, Reply: t.Send})
		}
	}
}

func (t *Transport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.Close()
				return
			}
		case <-t.closed:
			return
		}
	}
}

// Send marshals e to JSON and writes it as one text frame. transferables
// are accepted for interface compatibility but unused: there is nothing to
// transfer over a byte-stream socket.
func (t *Transport) Send(e envelope.Envelope, _ []interface{}) error {
	raw, err := json.Marshal(toWire(e))
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, raw)
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return t.conn.Close()
}
