// Package admin exposes a Bus's HealthCheck/Diagnose operations over HTTP:
// a gorilla/mux router built once at construction, one HandleFunc per
// path, GET-only.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
)

// Server serves a Bus's health and diagnosis snapshots as JSON.
type Server struct {
	bus    *bus.Bus
	router *mux.Router
}

// NewServer builds a Server wrapping b. Use Server.Router().ServeHTTP or
// pass the Server itself to http.Serve/http.Server.Handler.
func NewServer(b *bus.Bus) *Server {
	s := &Server{bus: b, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/diagnose", s.handleDiagnose).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Router returns the underlying mux.Router, for a host that wants to mount
// additional routes alongside these.
func (s *Server) Router() *mux.Router { return s.router }

type healthResponse struct {
	PeerID          string    `json:"peerId"`
	Destroyed       bool      `json:"destroyed"`
	PeerCount       int       `json:"peerCount"`
	HandlerCount    int       `json:"handlerCount"`
	PendingRequests int       `json:"pendingRequests"`
	UptimeSeconds   float64   `json:"uptimeSeconds"`
	Uptime          string    `json:"uptime"`
	MemoryBytes     uint64    `json:"memoryBytes"`
	Memory          string    `json:"memory"`
	CheckedAt       time.Time `json:"checkedAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.bus.HealthCheck()
	resp := healthResponse{
		PeerID:          snap.PeerID,
		Destroyed:       snap.Destroyed,
		PeerCount:       len(snap.Peers),
		HandlerCount:    len(snap.Handlers),
		PendingRequests: snap.PendingRequests,
		UptimeSeconds:   snap.Uptime.Seconds(),
		Uptime:          snap.UptimeHuman,
		MemoryBytes:     snap.MemoryAlloc,
		Memory:          snap.MemoryHuman,
		CheckedAt:       time.Now(),
	}
	status := http.StatusOK
	if snap.Destroyed {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	d := s.bus.Diagnose()
	status := http.StatusOK
	if len(d.Issues) > 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, d)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
