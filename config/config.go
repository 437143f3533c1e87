// Package config loads a facade Config from YAML. This is ambient wiring
// for the demo binary only — the core library is configured by passing a
// Config value to actornet.New, never by reading files itself
// (SPEC_FULL.md §2).
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors actornet.Config's construction parameters (spec.md §6).
type Config struct {
	SelfMachineID          uint8    `yaml:"self_machine_id"`
	PeerAddresses          []string `yaml:"peer_addresses"`
	BatchMessageBytes      int      `yaml:"batch_message_bytes"`
	AcceptableTurnDistance uint32   `yaml:"acceptable_turn_distance"`
	TurnSleepDistanceRatio uint32   `yaml:"turn_sleep_distance_ratio"`
}

// Default values mirroring spec.md §6's examples.
const (
	DefaultBatchMessageBytes      = 65536
	DefaultAcceptableTurnDistance = 30
	DefaultTurnSleepDistanceRatio = 5
)

// Load reads and parses a YAML config file at path, filling in the
// spec.md §6 defaults for any zero-valued tuning field.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}

	if cfg.BatchMessageBytes == 0 {
		cfg.BatchMessageBytes = DefaultBatchMessageBytes
	}
	if cfg.AcceptableTurnDistance == 0 {
		cfg.AcceptableTurnDistance = DefaultAcceptableTurnDistance
	}
	if cfg.TurnSleepDistanceRatio == 0 {
		cfg.TurnSleepDistanceRatio = DefaultTurnSleepDistanceRatio
	}
	return cfg, nil
}
