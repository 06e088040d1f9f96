// Package config holds the daemon's optional on-disk tuning knobs,
// grounded on project.go's yaml.v3-backed struct shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultEventRingSize is the default capacity of each session's replay ring,
// overridden by event_ring_size (spec §9 Open Question: a tuning parameter,
// not a correctness one).
const DefaultEventRingSize = 4096

// Config carries every implementation-defined knob spec.md leaves to the
// implementer (§4.2, §9).
type Config struct {
	// ReplayLines is how many scrollback lines a client gets replayed on
	// attach (default 200, per spec's explicit recommendation that this be
	// configurable).
	ReplayLines int `yaml:"replay_lines"`

	// FlushBytes and FlushIntervalMS are parsed from the file but nothing
	// reads them: the poller batches with its own fixed thresholds
	// (flushSize 16 KiB, flushInterval 50 ms in internal/poller).
	FlushBytes      int `yaml:"flush_bytes"`
	FlushIntervalMS int `yaml:"flush_interval_ms"`

	// ScrollbackCap bounds how many bytes of output history a pane keeps
	// in memory.
	ScrollbackCap int `yaml:"scrollback_cap"`

	// EventRingSize is the per-session replay ring capacity.
	EventRingSize int `yaml:"event_ring_size"`
}

// Default returns the built-in defaults used when no config file exists.
func Default() Config {
	return Config{
		ReplayLines:     200,
		FlushBytes:      16 * 1024,
		FlushIntervalMS: 50,
		ScrollbackCap:   1 << 20,
		EventRingSize:   DefaultEventRingSize,
	}
}

// Load reads path if it exists, overlaying its fields onto the defaults; a
// missing file is not an error (the config file is optional, per
// SPEC_FULL.md §2).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
