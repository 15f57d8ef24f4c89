// Package engine implements the Catbus protocol dispatcher: a single
// UDP socket shared by the message dispatcher, the announce/link-
// broadcast loop, and the publish worker, coordinated by one
// errgroup-managed goroutine set per Node. See SPEC_FULL.md §4.8-§4.9,
// §5.
package engine

import (
	"errors"
	"time"
)

// Timing defaults, per spec.md §4.9/§4.10 and SPEC_FULL.md §5.
const (
	DefaultAnnounceIntervalBase   = 4000 * time.Millisecond
	DefaultAnnounceIntervalJitter = 1024 * time.Millisecond // uniform-random(0..1023) ms
	DefaultLinkBroadcastPace      = 10 * time.Millisecond
	DefaultPublishPace            = 2 * time.Millisecond
	DefaultDiscoveryPort          = 7867 // CATBUS_DISCOVERY_PORT
)

// Config is the Node's timing and addressing configuration, following
// the teacher's Config/Valid()/DefaultConfig idiom (cs104.Config).
type Config struct {
	// DiscoveryPort is the single UDP port the node binds for discovery
	// and data traffic (spec.md §6).
	DiscoveryPort int

	// BroadcastAddr is the destination for ANNOUNCE and LINK broadcasts.
	// Defaults to 255.255.255.255 per spec.md §6.
	BroadcastAddr string

	// AnnounceIntervalBase and AnnounceIntervalJitter together form the
	// periodic announce period: base + uniform-random(0, jitter).
	AnnounceIntervalBase   time.Duration
	AnnounceIntervalJitter time.Duration

	// LinkBroadcastPace paces the per-announce-tick link-broadcast task
	// (spec.md §4.9 step 5: "10ms between sends").
	LinkBroadcastPace time.Duration

	// PublishPace paces the publish worker's per-entry sends
	// (spec.md §4.7: "yields briefly between sends").
	PublishPace time.Duration
}

// DefaultConfig returns a Config with every field set to its spec
// default.
func DefaultConfig() Config {
	return Config{
		DiscoveryPort:          DefaultDiscoveryPort,
		BroadcastAddr:          "255.255.255.255",
		AnnounceIntervalBase:   DefaultAnnounceIntervalBase,
		AnnounceIntervalJitter: DefaultAnnounceIntervalJitter,
		LinkBroadcastPace:      DefaultLinkBroadcastPace,
		PublishPace:            DefaultPublishPace,
	}
}

// Valid reports whether c is a usable configuration, filling in defaults
// from DefaultConfig (mirroring cs104.Config.Valid's "apply default for
// each unspecified value" behavior): a zero DiscoveryPort or empty
// BroadcastAddr, and a zero or negative AnnounceIntervalBase,
// LinkBroadcastPace or PublishPace, take the default. A negative
// AnnounceIntervalJitter takes the default; a zero one is kept and means
// no jitter. A DiscoveryPort outside 0..65535 is an error.
func (c *Config) Valid() error {
	d := DefaultConfig()
	if c.DiscoveryPort == 0 {
		c.DiscoveryPort = d.DiscoveryPort
	}
	if c.DiscoveryPort < 0 || c.DiscoveryPort > 65535 {
		return errors.New("engine: discovery port out of range")
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = d.BroadcastAddr
	}
	if c.AnnounceIntervalBase <= 0 {
		c.AnnounceIntervalBase = d.AnnounceIntervalBase
	}
	if c.AnnounceIntervalJitter < 0 {
		c.AnnounceIntervalJitter = d.AnnounceIntervalJitter
	}
	if c.LinkBroadcastPace <= 0 {
		c.LinkBroadcastPace = d.LinkBroadcastPace
	}
	if c.PublishPace <= 0 {
		c.PublishPace = d.PublishPace
	}
	return nil
}
