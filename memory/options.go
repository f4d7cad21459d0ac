package memory

import "github.com/velmie/lordn"

// Config defines in-memory store behavior.
type Config struct {
	Clock     lordn.Clock
	Generator lordn.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = lordn.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = lordn.NewUUIDv7Generator()
	}

	return c
}

// Option configures the in-memory stores.
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
