package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

// EnqueueJob stores the job as a Hash and indexes it by run_at.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	j.ApplyDefaults(time.Now().UTC())
	jID := j.ID.String()

	res, err := enqueueScript.Run(ctx, s.client,
		[]string{jobKey(jID), indexKey}, jobArgs(j)...).Int()
	if err != nil {
		return fmt.Errorf("delayed/redis: enqueue job: %w", err)
	}
	if res == 0 {
		return delayed.ErrJobAlreadyExists
	}
	return nil
}

// FindAndLock claims the first eligible job inside one Lua script.
func (s *Store) FindAndLock(ctx context.Context, f job.Filter) (id.JobID, error) {
	args := []any{
		formatTime(f.Now),
		f.Worker,
		formatTime(f.StaleBefore()),
		formatBound(f.MinPriority),
		formatBound(f.MaxPriority),
		jobKeyPrefix,
	}
	for _, q := range f.Queues {
		args = append(args, q)
	}

	raw, err := findAndLockScript.Run(ctx, s.client, []string{indexKey}, args...).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return id.Nil, nil
		}
		return id.Nil, fmt.Errorf("delayed/redis: find and lock: %w", err)
	}

	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.Nil, fmt.Errorf("delayed/redis: parse job id %q: %w", raw, err)
	}
	return jobID, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("delayed/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, delayed.ErrJobNotFound
	}
	return mapToJob(vals)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = time.Now().UTC()
	jID := j.ID.String()

	res, err := updateScript.Run(ctx, s.client,
		[]string{jobKey(jID), indexKey}, jobArgs(j)...).Int()
	if err != nil {
		return fmt.Errorf("delayed/redis: update job: %w", err)
	}
	if res == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, jobKey(jID))
	pipe.ZRem(ctx, indexKey, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delayed/redis: delete job: %w", err)
	}
	if del.Val() == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// ClearLocks releases every lock held by worker.
func (s *Store) ClearLocks(ctx context.Context, worker string) (int64, error) {
	n, err := clearLocksScript.Run(ctx, s.client, []string{indexKey},
		worker, formatTime(time.Now().UTC()), jobKeyPrefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("delayed/redis: clear locks: %w", err)
	}
	return n, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("delayed/redis: count zrange: %w", err)
	}
	if opts.Queue == "" && opts.Status == "" {
		return int64(len(ids)), nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return 0, fmt.Errorf("delayed/redis: count jobs: %w", err)
	}

	var count int64
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, convErr := mapToJob(vals)
		if convErr != nil {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.Status != "" && j.Status() != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// jobArgs builds the script arguments shared by enqueue and update: the ID,
// the index score, then every hash field.
func jobArgs(j *job.Job) []any {
	return []any{
		j.ID.String(),
		formatTime(j.RunAt),
		"id", j.ID.String(),
		"priority", strconv.Itoa(j.Priority),
		"attempts", strconv.Itoa(j.Attempts),
		"handler", string(j.Handler),
		"queue", j.Queue,
		"run_at", formatTime(j.RunAt),
		"locked_at", formatTimePtr(j.LockedAt),
		"locked_by", j.LockedBy,
		"failed_at", formatTimePtr(j.FailedAt),
		"last_error", j.LastError,
		"created_at", formatTime(j.CreatedAt),
		"updated_at", formatTime(j.UpdatedAt),
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("delayed/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"]) //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &job.Job{
		ID:        jID,
		Priority:  priority,
		Attempts:  attempts,
		Handler:   []byte(m["handler"]),
		Queue:     m["queue"],
		RunAt:     parseTime(m["run_at"]),
		LockedAt:  parseTimePtr(m["locked_at"]),
		LockedBy:  m["locked_by"],
		FailedAt:  parseTimePtr(m["failed_at"]),
		LastError: m["last_error"],
		CreatedAt: parseTime(m["created_at"]),
		UpdatedAt: parseTime(m["updated_at"]),
	}, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	us, _ := strconv.ParseInt(s, 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	return time.UnixMicro(us).UTC()
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}

func formatBound(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
