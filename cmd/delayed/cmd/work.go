package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/backoff"
	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/middleware"
	"github.com/xraph/delayed/observability"
	"github.com/xraph/delayed/reserve"
	"github.com/xraph/delayed/worker"
)

// errNoHandlers is returned by work when nothing could run the jobs.
var errNoHandlers = errors.New("no job handlers registered; build a binary that passes cmd.WithRegistry")

func (a *app) newWorkCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "work",
		Short: "Run workers until interrupted",
		Long: `Run a pool of reservation loops until SIGINT or SIGTERM. On shutdown the
pool waits for running jobs, then releases every lock it still holds.

With --work-off N, reserve and run up to N jobs in the foreground and exit.`,
		Args: cobra.NoArgs,
		RunE: a.runWork,
	}

	d := delayed.DefaultConfig()
	f := c.Flags()
	f.String("worker-name", "", "worker identity (default host:<hostname> pid:<pid>)")
	f.Int("concurrency", d.Concurrency, "number of reservation loops")
	f.Int("max-attempts", d.MaxAttempts, "failed runs before a job is marked failed")
	f.Duration("poll-interval", d.PollInterval, "idle wait between reservations")
	f.Float64("reserve-rate", 0, "max reservations per second across loops (0 = unlimited)")
	f.Duration("shutdown-timeout", d.ShutdownTimeout, "how long to wait for running jobs on shutdown")
	f.Bool("destroy-failed-jobs", false, "delete jobs that fail permanently")
	f.String("backoff", "polynomial", "retry delay: polynomial[:<power>,<offset>], constant:<d>, exponential|jitter:<initial>,<max>")
	f.Int("work-off", 0, "run up to N jobs, then exit")
	_ = a.v.BindPFlags(f)

	return c
}

func (a *app) runWork(c *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := a.logger(c.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := a.config()
	if err != nil {
		return err
	}
	strategy, err := backoff.Parse(a.v.GetString("backoff"))
	if err != nil {
		return err
	}
	if len(a.registry.Names()) == 0 {
		return errNoHandlers
	}

	s, closeStore, err := a.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	job.RegisterRefs(a.resolver, s)

	extensions := ext.NewRegistry(logger)
	extensions.Register(observability.NewMetricsExtension())

	engine := reserve.NewEngine(s,
		reserve.WithLogger(logger),
		reserve.WithCriteria(job.CriteriaFromConfig(cfg)),
	)
	locks := reserve.NewLockManager(s, reserve.WithLogger(logger))
	executor := worker.NewExecutor(cfg, a.registry, s,
		worker.WithResolver(a.resolver),
		worker.WithExtensions(extensions),
		worker.WithExecutorLogger(logger),
		worker.WithBackoff(strategy),
		worker.WithMiddleware(
			middleware.Logging(logger),
			middleware.Recover(logger),
			middleware.Tracing(),
			middleware.Metrics(),
			middleware.Timeout(logger),
		),
	)
	logger.Info("retry policy",
		slog.String("backoff", fmt.Sprint(strategy)),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.Duration("retry_window", backoff.Window(strategy, cfg.MaxAttempts)),
	)

	pool := worker.NewPool(engine, locks, executor, extensions, logger, worker.WithConfig(cfg))

	if n := a.v.GetInt("work-off"); n > 0 {
		start := time.Now()
		success, failure, err := pool.WorkOff(ctx, n)
		total := success + failure
		perSecond := float64(total) / time.Since(start).Seconds()
		c.Printf("%d jobs processed at %.4f j/s, %d failed\n", total, perSecond, failure)
		return err
	}

	if err := pool.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	// Shutdown is bounded by the pool's shutdown timeout.
	return pool.Stop(context.WithoutCancel(ctx))
}
