package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that bounds a run by the lock's max run time.
// Past that point another worker may reserve the job, so the handler's
// context is cancelled and it should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *Run, next Handler) error {
		if r.MaxRunTime > 0 {
			logger.Debug("job deadline set",
				slog.String("job_id", r.Job.ID.String()),
				slog.Duration("max_run_time", r.MaxRunTime),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.MaxRunTime)
			defer cancel()
		}
		return next(ctx)
	}
}
