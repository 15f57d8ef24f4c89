// Package config loads a Node's on-disk TOML configuration: device
// identity, meta tags, discovery networking, data directory, and the
// engine's timing knobs. This is the "cfg" collaborator of spec.md §6
// made concrete for a hosted Go build — it is distinct from the
// black-box config-store backend the spec treats as out of scope
// (modeled by kvmeta.ConfigStore), which remains a small typed map
// interface engine.Node takes as a collaborator.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chromatron/catbus/engine"
)

// NodeConfig is the on-disk shape of a Catbus node's configuration
// file, following the teacher's Config/Valid()/DefaultConfig idiom.
type NodeConfig struct {
	DeviceName string   `toml:"device_name"`
	MetaTags   []string `toml:"meta_tags"`
	DataDir    string   `toml:"data_dir"`

	DiscoveryPort          int           `toml:"discovery_port"`
	BroadcastAddr          string        `toml:"broadcast_addr"`
	AnnounceIntervalBase   time.Duration `toml:"announce_interval_base"`
	AnnounceIntervalJitter time.Duration `toml:"announce_interval_jitter"`

	StatusAPIAddr string `toml:"status_api_addr"`
}

// DefaultNodeConfig returns a NodeConfig with the engine's timing
// defaults and a local data directory.
func DefaultNodeConfig() NodeConfig {
	ec := engine.DefaultConfig()
	return NodeConfig{
		DataDir:                "./catbus-data",
		DiscoveryPort:          ec.DiscoveryPort,
		BroadcastAddr:          ec.BroadcastAddr,
		AnnounceIntervalBase:   ec.AnnounceIntervalBase,
		AnnounceIntervalJitter: ec.AnnounceIntervalJitter,
		StatusAPIAddr:          "127.0.0.1:8080",
	}
}

// Valid fills in zero-valued fields from DefaultNodeConfig.
func (c *NodeConfig) Valid() error {
	d := DefaultNodeConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.DiscoveryPort == 0 {
		c.DiscoveryPort = d.DiscoveryPort
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = d.BroadcastAddr
	}
	if c.AnnounceIntervalBase == 0 {
		c.AnnounceIntervalBase = d.AnnounceIntervalBase
	}
	if c.AnnounceIntervalJitter == 0 {
		c.AnnounceIntervalJitter = d.AnnounceIntervalJitter
	}
	if c.StatusAPIAddr == "" {
		c.StatusAPIAddr = d.StatusAPIAddr
	}
	return nil
}

// EngineConfig projects the timing/networking fields into an
// engine.Config for Node construction.
func (c NodeConfig) EngineConfig() engine.Config {
	return engine.Config{
		DiscoveryPort:          c.DiscoveryPort,
		BroadcastAddr:          c.BroadcastAddr,
		AnnounceIntervalBase:   c.AnnounceIntervalBase,
		AnnounceIntervalJitter: c.AnnounceIntervalJitter,
		LinkBroadcastPace:      engine.DefaultLinkBroadcastPace,
		PublishPace:            engine.DefaultPublishPace,
	}
}

// Load reads and parses a NodeConfig from path, applying defaults to
// any unspecified field.
func Load(path string) (NodeConfig, error) {
	var c NodeConfig
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return NodeConfig{}, err
	}
	if err := c.Valid(); err != nil {
		return NodeConfig{}, err
	}
	return c, nil
}
