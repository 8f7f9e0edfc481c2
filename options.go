package delayed

import "time"

// Option configures a Config.
type Option func(*Config)

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithWorkerName sets the identity written to locked_by.
func WithWorkerName(name string) Option {
	return func(c *Config) { c.WorkerName = name }
}

// WithConcurrency sets the number of reservation loops in a pool.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithQueues restricts reservation to the given queues.
func WithQueues(queues ...string) Option {
	return func(c *Config) { c.Queues = queues }
}

// WithMinPriority sets the inclusive lower priority bound.
func WithMinPriority(p int) Option {
	return func(c *Config) { c.MinPriority = &p }
}

// WithMaxPriority sets the inclusive upper priority bound.
func WithMaxPriority(p int) Option {
	return func(c *Config) { c.MaxPriority = &p }
}

// WithMaxRunTime sets how long a lock is honoured before it is stale.
func WithMaxRunTime(d time.Duration) Option {
	return func(c *Config) { c.MaxRunTime = d }
}

// WithMaxAttempts sets the number of failures after which a job is failed.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithPollInterval sets how long an idle loop sleeps between reservations.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// WithReserveRate caps reservation attempts per second.
func WithReserveRate(perSecond float64) Option {
	return func(c *Config) { c.ReserveRate = perSecond }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithDestroyFailedJobs deletes jobs once they fail permanently.
func WithDestroyFailedJobs() Option {
	return func(c *Config) { c.DestroyFailedJobs = true }
}
