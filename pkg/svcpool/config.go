package svcpool

import (
	"fmt"

	"github.com/marmos91/fhasched/pkg/fha"
)

const (
	DefaultWorkers         = 8
	DefaultQueueSize       = 1024
	DefaultWorkerQueueSize = 64
)

// Config sizes the pool and carries the scheduler tunables.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize is the capacity of the shared ingress queue.
	QueueSize int

	// WorkerQueueSize is the capacity of each worker's private queue of
	// forwarded calls.
	WorkerQueueSize int

	// Scheduler configures file-handle affinity.
	Scheduler fha.Tunables
}

// DefaultConfig returns a pool with DefaultWorkers workers and default tunables.
func DefaultConfig() Config {
	return Config{
		Workers:         DefaultWorkers,
		QueueSize:       DefaultQueueSize,
		WorkerQueueSize: DefaultWorkerQueueSize,
		Scheduler:       fha.DefaultTunables(),
	}
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.WorkerQueueSize <= 0 {
		c.WorkerQueueSize = DefaultWorkerQueueSize
	}
}

func (c Config) validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
