package delayed

import (
	"fmt"
	"time"
)

// Config holds the settings shared by every worker in a process.
type Config struct {
	// WorkerName is the identity written to locked_by. Empty means the
	// worker package derives one from the host name and process id.
	WorkerName string

	// Concurrency is the number of reservation loops run by a pool. Each
	// loop gets its own identity so that no two loops share a lock.
	Concurrency int

	// Queues restricts reservation to jobs tagged with one of these queues.
	// Empty means all queues.
	Queues []string

	// MinPriority and MaxPriority are inclusive bounds on the priority of
	// reservable jobs. Nil means unbounded.
	MinPriority *int
	MaxPriority *int

	// MaxRunTime is how long a lock is honoured. A job locked longer than
	// this is considered abandoned and may be reserved by another worker.
	MaxRunTime time.Duration

	// MaxAttempts is the number of failed runs after which a job is marked
	// failed and never reserved again.
	MaxAttempts int

	// PollInterval is how long an idle loop waits before reserving again.
	PollInterval time.Duration

	// ReserveRate caps reservation attempts per second across all loops of
	// a pool. Zero means unlimited.
	ReserveRate float64

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration

	// DestroyFailedJobs deletes permanently failed jobs instead of keeping
	// them with failed_at set.
	DestroyFailedJobs bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     1,
		MaxRunTime:      4 * time.Hour,
		MaxAttempts:     25,
		PollInterval:    5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.MaxRunTime <= 0 {
		return fmt.Errorf("%w: max run time must be positive, got %s", ErrInvalidConfig, c.MaxRunTime)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	}
	if c.ReserveRate < 0 {
		return fmt.Errorf("%w: reserve rate must not be negative", ErrInvalidConfig)
	}
	if c.MinPriority != nil && c.MaxPriority != nil && *c.MinPriority > *c.MaxPriority {
		return fmt.Errorf("%w: min priority %d is above max priority %d",
			ErrInvalidConfig, *c.MinPriority, *c.MaxPriority)
	}
	for _, q := range c.Queues {
		if q == "" {
			return fmt.Errorf("%w: empty queue name", ErrInvalidConfig)
		}
	}
	return nil
}
