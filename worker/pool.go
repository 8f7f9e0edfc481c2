package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/reserve"
)

// clearLocksTimeout bounds the lock release that ends Stop when the
// caller's context has already expired.
const clearLocksTimeout = 10 * time.Second

// DefaultWorkerName returns "host:<hostname> pid:<pid>".
func DefaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("host:%s pid:%d", host, os.Getpid())
}

// Pool manages a set of reservation loops that reserve jobs and run them
// through the Executor.
type Pool struct {
	engine     *reserve.Engine
	locks      *reserve.LockManager
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger

	name            string
	concurrency     int
	maxRunTime      time.Duration
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	reserveRate     float64

	limiter *rate.Limiter

	stopCh     chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConfig applies the worker name, concurrency, max run time, poll
// interval, reserve rate and shutdown timeout from cfg.
func WithConfig(cfg delayed.Config) PoolOption {
	return func(p *Pool) {
		if cfg.WorkerName != "" {
			p.name = cfg.WorkerName
		}
		p.concurrency = cfg.Concurrency
		p.maxRunTime = cfg.MaxRunTime
		p.pollInterval = cfg.PollInterval
		p.reserveRate = cfg.ReserveRate
		p.shutdownTimeout = cfg.ShutdownTimeout
	}
}

// WithWorkerName sets the base identity of the pool's loops.
func WithWorkerName(name string) PoolOption {
	return func(p *Pool) { p.name = name }
}

// WithPoolConcurrency sets the number of reservation loops.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long an idle loop waits before reserving again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithMaxRunTime sets how long the pool's locks are honoured.
func WithMaxRunTime(d time.Duration) PoolOption {
	return func(p *Pool) { p.maxRunTime = d }
}

// WithReserveRate caps reservation attempts per second across all loops.
// Zero disables the limit.
func WithReserveRate(perSecond float64) PoolOption {
	return func(p *Pool) { p.reserveRate = perSecond }
}

// WithShutdownTimeout bounds how long Stop waits for in-flight jobs.
func WithShutdownTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.shutdownTimeout = d }
}

// NewPool creates a worker pool.
func NewPool(
	engine *reserve.Engine,
	locks *reserve.LockManager,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	defaults := delayed.DefaultConfig()
	p := &Pool{
		engine:          engine,
		locks:           locks,
		executor:        executor,
		extensions:      extensions,
		logger:          logger,
		name:            DefaultWorkerName(),
		concurrency:     defaults.Concurrency,
		maxRunTime:      defaults.MaxRunTime,
		pollInterval:    defaults.PollInterval,
		shutdownTimeout: defaults.ShutdownTimeout,
		activeJobs:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.extensions == nil {
		p.extensions = ext.NewRegistry(p.logger)
	}
	if p.reserveRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(p.reserveRate), p.concurrency)
	}
	return p
}

// Name returns the pool's base worker identity.
func (p *Pool) Name() string { return p.name }

// Identities returns the worker identity of every loop. A single loop uses
// the base name; otherwise loop i is "<name>/<i>".
func (p *Pool) Identities() []string {
	if p.concurrency == 1 {
		return []string{p.name}
	}
	ids := make([]string, p.concurrency)
	for i := range ids {
		ids[i] = p.name + "/" + strconv.Itoa(i)
	}
	return ids
}

// Start launches the reservation loops. It returns immediately. A stopped
// pool can be started again.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	stop := make(chan struct{})
	p.stopCh = stop

	p.logger.Info("worker pool starting",
		slog.String("worker", p.name),
		slog.Int("concurrency", p.concurrency),
		slog.Duration("max_run_time", p.maxRunTime),
	)

	for _, identity := range p.Identities() {
		p.wg.Add(1)
		go p.reserveLoop(ctx, stop, identity)
	}
	return nil
}

// Stop signals the loops to stop and waits for in-flight jobs. When the
// wait outlives ctx or the shutdown timeout, running jobs are cancelled.
// Finally every lock held by the pool's identities is released. Start
// blocks until Stop has returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false

	p.logger.Info("worker pool stopping", slog.String("worker", p.name))

	close(p.stopCh)
	p.cancel()

	waitCtx := ctx
	if p.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.shutdownTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-waitCtx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		<-done
	}

	err := p.clearLocks(ctx)
	p.extensions.EmitShutdown(ctx)
	return err
}

// clearLocks releases the locks of every identity concurrently.
func (p *Pool) clearLocks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearLocksTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, identity := range p.Identities() {
		g.Go(func() error {
			n, err := p.locks.ClearLocks(gctx, identity)
			if err != nil {
				return err
			}
			p.extensions.EmitLocksCleared(gctx, identity, n)
			return nil
		})
	}
	return g.Wait()
}

// reserveLoop is run by each loop goroutine under its own identity.
func (p *Pool) reserveLoop(ctx context.Context, stop <-chan struct{}, identity string) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}

		j, err := p.engine.Reserve(ctx, identity, p.maxRunTime)
		switch {
		case errors.Is(err, delayed.ErrRecordVanished):
			continue
		case ctx.Err() != nil:
			return
		case err != nil:
			p.logger.Error("reserve error",
				slog.String("worker", identity),
				slog.String("error", err.Error()),
			)
			p.sleep(stop)
			continue
		case j == nil:
			p.sleep(stop)
			continue
		}

		p.execute(identity, j)
	}
}

// execute runs j under a cancellable context that is not tied to the loop,
// so that stopping the pool lets in-flight jobs finish.
func (p *Pool) execute(identity string, j *job.Job) {
	p.extensions.EmitJobReserved(context.Background(), j, identity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := j.ID.String()
	p.trackJob(key, cancel)
	defer p.untrackJob(key)

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", key),
			slog.String("worker", identity),
			slog.String("error", err.Error()),
		)
	}
}

// WorkOff synchronously reserves and runs up to n jobs under the pool's base
// identity. It stops early when no job is eligible and reports how many runs
// succeeded and failed.
func (p *Pool) WorkOff(ctx context.Context, n int) (success, failure int, err error) {
	for success+failure < n {
		j, resErr := p.engine.Reserve(ctx, p.name, p.maxRunTime)
		switch {
		case errors.Is(resErr, delayed.ErrRecordVanished):
			continue
		case resErr != nil:
			return success, failure, resErr
		case j == nil:
			return success, failure, nil
		}

		p.extensions.EmitJobReserved(ctx, j, p.name)
		if p.executor.Execute(ctx, j) != nil {
			failure++
		} else {
			success++
		}
	}
	return success, failure, nil
}

func (p *Pool) sleep(stop <-chan struct{}) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
