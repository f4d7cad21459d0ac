package pebblestore

import (
	"github.com/cockroachdb/pebble"

	"github.com/velmie/lordn"
)

// Config defines Pebble store behavior.
type Config struct {
	Clock     lordn.Clock
	Generator lordn.IDGenerator
	// NoSync skips the WAL fsync on commit.
	NoSync bool
	// PebbleOptions allows tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = lordn.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = lordn.NewUUIDv7Generator()
	}
	if c.PebbleOptions == nil {
		c.PebbleOptions = &pebble.Options{}
	}

	return c
}

func (c Config) writeOptions() *pebble.WriteOptions {
	if c.NoSync {
		return pebble.NoSync
	}

	return pebble.Sync
}

// Option configures the Pebble store.
type Option func(*Config)

// WithClock sets the time source used for lease expiry and task due times.
func WithClock(clock lordn.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the id generator.
func WithGenerator(gen lordn.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// WithNoSync trades durability for throughput by skipping WAL fsyncs.
func WithNoSync() Option {
	return func(c *Config) {
		c.NoSync = true
	}
}

// WithPebbleOptions sets advanced Pebble options.
func WithPebbleOptions(opts *pebble.Options) Option {
	return func(c *Config) {
		c.PebbleOptions = opts
	}
}
