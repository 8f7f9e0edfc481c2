package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/backoff"
	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/middleware"
	"github.com/xraph/delayed/payload"
	"github.com/xraph/delayed/ref"
)

// ErrUnknownHandler is returned for a job whose payload names a handler
// that is not registered. Such a job is failed permanently.
var ErrUnknownHandler = errors.New("delayed/worker: no handler registered")

// Executor runs a single reserved job through middleware and its handler,
// then records the outcome in the store and emits lifecycle events.
type Executor struct {
	registry      *job.Registry
	resolver      *ref.Resolver
	extensions    *ext.Registry
	store         job.Store
	backoff       backoff.Strategy
	mw            middleware.Middleware
	logger        *slog.Logger
	clock         func() time.Time
	maxAttempts   int
	maxRunTime    time.Duration
	destroyFailed bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithResolver sets the resolver used for payload references. Without one,
// a payload carrying references fails permanently.
func WithResolver(r *ref.Resolver) ExecutorOption {
	return func(e *Executor) { e.resolver = r }
}

// WithExtensions sets the registry notified of job outcomes.
func WithExtensions(r *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = r }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = s }
}

// WithMiddleware sets the middleware every run passes through.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithExecutorClock replaces the time source used for rescheduling and
// failure timestamps.
func WithExecutorClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

// NewExecutor creates an Executor that takes its attempt limit, max run time
// and failed-job policy from cfg.
func NewExecutor(cfg delayed.Config, registry *job.Registry, store job.Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:      registry,
		store:         store,
		backoff:       backoff.DefaultStrategy(),
		mw:            middleware.Chain(),
		logger:        slog.Default(),
		clock:         func() time.Time { return time.Now().UTC() },
		maxAttempts:   cfg.MaxAttempts,
		maxRunTime:    cfg.MaxRunTime,
		destroyFailed: cfg.DestroyFailedJobs,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = delayed.DefaultConfig().MaxAttempts
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(e.logger)
	}
	return e
}

// Execute runs j, which must be locked by the calling worker.
//
// On success the job is deleted and JobCompleted fires. On failure the
// attempt count grows and the job is unlocked and rescheduled with backoff
// (JobRetrying), unless the attempt limit is reached or the failure is
// permanent, in which case the job is marked failed or deleted (JobFailed).
//
// The returned error is the run's failure, or a store error if the outcome
// could not be recorded.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	start := time.Now()

	run, runErr := e.run(ctx, j)
	elapsed := time.Since(start)

	// The outcome is recorded even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	if runErr == nil {
		return e.handleSuccess(ctx, run, elapsed)
	}
	if isPermanent(runErr) {
		return e.fail(ctx, run, runErr)
	}
	return e.handleFailure(ctx, run, runErr)
}

// run decodes and invokes the handler. The returned Run is populated as far
// as decoding got, so failures can still be logged with a name.
func (e *Executor) run(ctx context.Context, j *job.Job) (*middleware.Run, error) {
	r := &middleware.Run{Job: j, Worker: j.LockedBy, MaxRunTime: e.maxRunTime}

	env, err := payload.Decode(e.registry.Codec(), j.Handler)
	if err != nil {
		return r, err
	}
	r.Name = env.Name

	handler, ok := e.registry.Get(env.Name)
	if !ok {
		return r, fmt.Errorf("%w: %q", ErrUnknownHandler, env.Name)
	}

	if len(env.Refs) > 0 {
		if e.resolver == nil {
			return r, &delayed.DeserializationError{Err: delayed.ErrUnknownRecordType}
		}
		recs, err := e.resolver.ResolveAll(ctx, env.Refs)
		if err != nil {
			return r, err
		}
		ctx = ref.WithRecords(ctx, recs)
	}

	return r, e.mw(ctx, r, func(ctx context.Context) error {
		return handler(ctx, env)
	})
}

func isPermanent(err error) bool {
	return errors.Is(err, delayed.ErrDeserialization) || errors.Is(err, ErrUnknownHandler)
}

// handleSuccess removes the finished job and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, r *middleware.Run, elapsed time.Duration) error {
	j := r.Job
	if err := e.store.DeleteJob(ctx, j.ID); err != nil && !errors.Is(err, delayed.ErrNotFound) {
		e.logger.Error("failed to delete job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", r.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delayed/worker: delete completed job %s: %w", j.ID, err)
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)

	e.logger.Info("job completed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", r.Name),
		slog.String("worker", r.Worker),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// handleFailure counts the attempt and either reschedules or fails the job.
func (e *Executor) handleFailure(ctx context.Context, r *middleware.Run, runErr error) error {
	j := r.Job
	j.Attempts++
	j.LastError = runErr.Error()

	if j.Attempts >= e.maxAttempts {
		return e.fail(ctx, r, runErr)
	}

	now := e.clock()
	delay := e.backoff.Delay(j.Attempts)
	j.RunAt = now.Add(delay)
	j.Unlock()
	j.UpdatedAt = now

	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("failed to reschedule job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delayed/worker: reschedule job %s: %w", j.ID, err)
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, j.RunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", r.Name),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", e.maxAttempts),
		slog.Duration("delay", delay),
		slog.String("error", runErr.Error()),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.ID, j.Attempts, e.maxAttempts, runErr)
}

// fail marks the job permanently failed, or deletes it when failed jobs are
// not kept.
func (e *Executor) fail(ctx context.Context, r *middleware.Run, runErr error) error {
	j := r.Job
	now := e.clock()
	j.LastError = runErr.Error()
	j.Unlock()
	j.MarkFailed(now)
	j.UpdatedAt = now

	var err error
	if e.destroyFailed {
		err = e.store.DeleteJob(ctx, j.ID)
		if errors.Is(err, delayed.ErrNotFound) {
			err = nil
		}
	} else {
		err = e.store.UpdateJob(ctx, j)
	}
	if err != nil {
		e.logger.Error("failed to record permanent failure",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delayed/worker: fail job %s: %w", j.ID, err)
	}

	e.extensions.EmitJobFailed(ctx, j, runErr)

	e.logger.Warn("job failed permanently",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", r.Name),
		slog.Int("attempts", j.Attempts),
		slog.Bool("destroyed", e.destroyFailed),
		slog.String("error", runErr.Error()),
	)

	return runErr
}
