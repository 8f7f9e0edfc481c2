package job

import "time"

// Options configures how a job is enqueued.
type Options struct {
	// Queue is the job-class tag. Empty leaves the job untagged.
	Queue string

	// Priority determines reservation order. Lower values run first.
	Priority int

	// RunAt schedules the job for later. Zero means as soon as possible.
	RunAt time.Time
}

// Option is a functional option for enqueue settings.
type Option func(*Options)

// WithQueue sets the queue tag.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithPriority sets the job priority. Lower values are reserved first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithRunAt schedules the job for a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithDelay schedules the job d from the moment the option is applied.
func WithDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RunAt = time.Now().UTC().Add(d)
	}
}
