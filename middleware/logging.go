package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *Run, next Handler) error {
		logger.Info("job started",
			slog.String("job_name", r.Name),
			slog.String("job_id", r.Job.ID.String()),
			slog.String("queue", r.Job.Queue),
			slog.String("worker", r.Worker),
			slog.Int("attempts", r.Job.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_name", r.Name),
				slog.String("job_id", r.Job.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_name", r.Name),
				slog.String("job_id", r.Job.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
