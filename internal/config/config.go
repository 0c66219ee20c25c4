// Package config loads the node's ambient settings — difficulty suffix,
// channel buffer sizes — from a TOML file, the way the teacher's node.Config
// is assembled from BurntSushi/toml-parsed files.
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Config holds everything the core needs that isn't carried on the wire.
type Config struct {
	// Difficulty is the lowercase hex suffix a sealed block's hash must end
	// with. Empty means every block satisfies difficulty.
	Difficulty string `toml:"difficulty"`

	// InboundBuffer and WorkerBuffer size the bounded channels between the
	// transport, the Node, and the Miner Worker. spec §5 recommends 16-64.
	InboundBuffer int `toml:"inbound_buffer"`
	WorkerBuffer  int `toml:"worker_buffer"`
}

// DefaultConfig is used when no config file is supplied.
var DefaultConfig = Config{
	Difficulty:    "00",
	InboundBuffer: 32,
	WorkerBuffer:  32,
}

// LoadFile reads and validates a TOML config file, falling back to
// DefaultConfig's values for any field the file omits. A field the file sets
// explicitly, even to its zero value, overrides the default.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: loading %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a difficulty suffix containing characters that can never
// appear in a lowercase-hex hash, and non-positive buffer sizes.
func (c Config) Validate() error {
	const hexDigits = "0123456789abcdef"
	for _, r := range c.Difficulty {
		if !strings.ContainsRune(hexDigits, r) {
			return errors.Newf("config: difficulty %q contains non-hex character %q", c.Difficulty, r)
		}
	}
	if c.InboundBuffer <= 0 {
		return errors.Newf("config: inbound_buffer must be positive, got %d", c.InboundBuffer)
	}
	if c.WorkerBuffer <= 0 {
		return errors.Newf("config: worker_buffer must be positive, got %d", c.WorkerBuffer)
	}
	return nil
}
