// Package middleware provides composable middleware for job execution.
// Middleware wraps handler calls synchronously and can modify execution
// (recover from panics, bound run time, log, add tracing, etc.).
package middleware

import (
	"context"
	"time"

	"github.com/xraph/delayed/job"
)

// Run describes one execution of a reserved job.
type Run struct {
	Job *job.Job

	// Name is the handler name decoded from the job's payload.
	Name string

	// Worker is the identity holding the job's lock.
	Worker string

	// MaxRunTime is how long the lock is honoured. A run that outlives it
	// may be reserved again by another worker.
	MaxRunTime time.Duration
}

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the run being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, r *Run, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, r *Run, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, r, prev)
			}
		}
		return h(ctx)
	}
}
