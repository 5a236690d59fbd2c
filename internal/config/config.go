// Package config loads bus construction options from YAML: a typed struct
// populated by yaml.Unmarshal, with defaults left to the zero value and
// filled in downstream when the bus is constructed.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crossbus-io/crossbus/pkg/crossbus/bus"
	"github.com/crossbus-io/crossbus/pkg/crossbus/definition"
)

// File is the on-disk shape of a bus configuration file.
type File struct {
	PeerID             string   `yaml:"peerId"`
	IsHub              bool     `yaml:"isHub"`
	AllowedOrigins     []string `yaml:"allowedOrigins"`
	StrictMode         bool     `yaml:"strictMode"`
	MaxPeers           int      `yaml:"maxPeers"`
	MaxPendingRequests int      `yaml:"maxPendingRequests"`
	RequestTimeout     string   `yaml:"requestTimeout"`
	AckTimeout         string   `yaml:"ackTimeout"`
	PresenceInterval   string   `yaml:"presenceInterval"`
	PresenceTimeout    string   `yaml:"presenceTimeout"`
	OrdererBufferSize  int      `yaml:"ordererBufferSize"`

	// Logging selects the logger backend: "logrus" (the default) or
	// "stderr" for the plain standard-library logger.
	Logging string `yaml:"logging"`
}

// Load reads and parses the YAML file at path into bus.Options, ready to
// hand to bus.New or bus.NewSecure.
func Load(path string) (bus.Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return bus.Options{}, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return bus.Options{}, err
	}
	return f.toOptions()
}

func (f File) toOptions() (bus.Options, error) {
	opts := bus.Options{
		PeerID:             f.PeerID,
		IsHub:              f.IsHub,
		AllowedOrigins:     f.AllowedOrigins,
		StrictMode:         f.StrictMode,
		MaxPeers:           f.MaxPeers,
		MaxPendingRequests: f.MaxPendingRequests,
		OrdererBufferSize:  f.OrdererBufferSize,
	}
	switch f.Logging {
	case "", "logrus":
		// leave opts.Logger nil; the bus defaults to logrus
	case "stderr":
		opts.Logger = definition.NewDefaultLogger()
	default:
		return bus.Options{}, fmt.Errorf("unknown logging backend %q", f.Logging)
	}
	var err error
	if opts.RequestTimeout, err = parseDuration(f.RequestTimeout); err != nil {
		return bus.Options{}, err
	}
	if opts.AckTimeout, err = parseDuration(f.AckTimeout); err != nil {
		return bus.Options{}, err
	}
	if opts.PresenceInterval, err = parseDuration(f.PresenceInterval); err != nil {
		return bus.Options{}, err
	}
	if opts.PresenceTimeout, err = parseDuration(f.PresenceTimeout); err != nil {
		return bus.Options{}, err
	}
	return opts, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
