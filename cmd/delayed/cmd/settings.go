package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/store"
	"github.com/xraph/delayed/store/memory"
	"github.com/xraph/delayed/store/mongo"
	"github.com/xraph/delayed/store/postgres"
	"github.com/xraph/delayed/store/redis"
)

// WithStore makes every subcommand use s instead of opening the configured
// backend. The caller keeps ownership; s is not closed.
func WithStore(s store.Store) Option {
	return func(a *app) { a.store = s }
}

// config assembles a validated delayed.Config from flags, environment and
// config file.
func (a *app) config() (delayed.Config, error) {
	cfg := delayed.DefaultConfig()

	cfg.WorkerName = a.v.GetString("worker-name")
	cfg.Queues = splitList(a.v.GetStringSlice("queues"))
	if d := a.v.GetDuration("max-run-time"); d != 0 {
		cfg.MaxRunTime = d
	}
	if a.v.IsSet("min-priority") {
		p := a.v.GetInt("min-priority")
		cfg.MinPriority = &p
	}
	if a.v.IsSet("max-priority") {
		p := a.v.GetInt("max-priority")
		cfg.MaxPriority = &p
	}
	if a.v.IsSet("concurrency") {
		cfg.Concurrency = a.v.GetInt("concurrency")
	}
	if a.v.IsSet("max-attempts") {
		cfg.MaxAttempts = a.v.GetInt("max-attempts")
	}
	if a.v.IsSet("poll-interval") {
		cfg.PollInterval = a.v.GetDuration("poll-interval")
	}
	if a.v.IsSet("shutdown-timeout") {
		cfg.ShutdownTimeout = a.v.GetDuration("shutdown-timeout")
	}
	cfg.ReserveRate = a.v.GetFloat64("reserve-rate")
	cfg.DestroyFailedJobs = a.v.GetBool("destroy-failed-jobs")

	if err := cfg.Validate(); err != nil {
		return delayed.Config{}, err
	}
	return cfg, nil
}

// splitList flattens comma-separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// logger builds the process logger from log-format and log-level.
func (a *app) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("%w: log level: %w", delayed.ErrInvalidConfig, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := a.v.GetString("log-format"); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", delayed.ErrInvalidConfig, format)
	}
}

// openStore connects to the configured backend. The returned close function
// releases it.
func (a *app) openStore(ctx context.Context, logger *slog.Logger) (store.Store, func(), error) {
	if a.store != nil {
		return a.store, func() {}, nil
	}

	kind := a.v.GetString("store")
	dsn := a.v.GetString("dsn")
	if dsn == "" && kind != "memory" {
		return nil, nil, fmt.Errorf("%w: --dsn is required for the %s store", delayed.ErrInvalidConfig, kind)
	}

	var (
		s   store.Store
		err error
	)
	switch kind {
	case "mongo":
		s, err = mongo.Connect(ctx, dsn, a.v.GetString("database"), mongo.WithLogger(logger))
	case "postgres":
		s, err = postgres.New(ctx, dsn, postgres.WithLogger(logger))
	case "redis":
		s, err = redis.Connect(ctx, dsn, redis.WithLogger(logger))
	case "memory":
		s = memory.New()
	default:
		return nil, nil, fmt.Errorf("%w: unknown store %q", delayed.ErrInvalidConfig, kind)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", kind, err)
	}

	closeFn := func() {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("close store", slog.String("error", cerr.Error()))
		}
	}
	return s, closeFn, nil
}
