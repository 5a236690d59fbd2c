package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bus.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("failed writing config file: %v", err)
	}
	return path
}

func TestLoad_PopulatesOptions(t *testing.T) {
	path := writeConfig(t, `
peerId: hub-1
isHub: true
maxPeers: 8
requestTimeout: 2s
logging: stderr
`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.PeerID != "hub-1" || !opts.IsHub || opts.MaxPeers != 8 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.RequestTimeout != 2*time.Second {
		t.Fatalf("expected requestTimeout of 2s, got %v", opts.RequestTimeout)
	}
	if opts.Logger == nil {
		t.Fatalf("expected logging: stderr to select a logger")
	}
}

func TestLoad_DefaultLoggingLeavesLoggerUnset(t *testing.T) {
	path := writeConfig(t, "peerId: node-1\n")
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Logger != nil {
		t.Fatalf("expected the logger choice to be deferred to the bus defaults")
	}
}

func TestLoad_RejectsUnknownLoggingBackend(t *testing.T) {
	path := writeConfig(t, "peerId: node-1\nlogging: syslog\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an unknown logging backend to be rejected")
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "peerId: node-1\nrequestTimeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an unparseable duration to be rejected")
	}
}
