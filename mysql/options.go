package mysql

import "github.com/velmie/lordn"

const (
	defaultTable     = "lordn_queue"
	defaultTaskTable = "lordn_tasks"
)

// Config defines MySQL store behavior.
type Config struct {
	// Table is the queue table. Use schema.table for a non-default schema.
	Table string
	// TaskTable is the verify task table used by TaskStore.
	TaskTable string
	Clock     lordn.Clock
	Generator lordn.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.TaskTable == "" {
		c.TaskTable = defaultTaskTable
	}
	if c.Clock == nil {
		c.Clock = lordn.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = lordn.NewUUIDv7Generator()
	}

	return c
}

// Option configures the MySQL stores.
type Option func(*Config)

// WithTable sets the queue table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithTaskTable sets the verify task table name.
func WithTaskTable(name string) Option {
	return func(c *Config) {
		c.TaskTable = name
	}
}

// WithClock sets the time source used for lease expiry and task due times.
func WithClock(clock lordn.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the UUID generator for record, lease and task ids.
func WithGenerator(gen lordn.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
