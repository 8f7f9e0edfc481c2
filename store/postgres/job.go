package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

const jobColumns = `id, priority, attempts, handler, queue, run_at,
	locked_at, locked_by, failed_at, last_error, created_at, updated_at`

// EnqueueJob persists a new job.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	j.ApplyDefaults(now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delayed_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		j.ID.String(), j.Priority, j.Attempts, j.Handler, j.Queue, j.RunAt,
		j.LockedAt, nullString(j.LockedBy), j.FailedAt, j.LastError,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return delayed.ErrJobAlreadyExists
		}
		return fmt.Errorf("delayed/postgres: enqueue job: %w", err)
	}
	return nil
}

// FindAndLock claims the first eligible job in a single UPDATE whose
// subquery selects with FOR UPDATE SKIP LOCKED.
//
// Parameters: $1 now, $2 worker, $3 stale-before cut-off, $4 min priority,
// $5 max priority, $6 queues.
func (s *Store) FindAndLock(ctx context.Context, f job.Filter) (id.JobID, error) {
	queues := f.Queues
	if queues == nil {
		queues = []string{}
	}

	var idStr string
	err := s.pool.QueryRow(ctx, `
		UPDATE delayed_jobs
		SET locked_at = $1, locked_by = $2, updated_at = $1
		WHERE id = (
			SELECT id FROM delayed_jobs
			WHERE run_at <= $1
			  AND failed_at IS NULL
			  AND (locked_by = $2 OR locked_at IS NULL OR locked_at <= $3)
			  AND ($4::integer IS NULL OR priority >= $4)
			  AND ($5::integer IS NULL OR priority <= $5)
			  AND (cardinality($6::text[]) = 0 OR queue = ANY($6))
			ORDER BY locked_by COLLATE "C" DESC NULLS LAST, priority ASC, run_at ASC, id COLLATE "C" ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`,
		f.Now, f.Worker, f.StaleBefore(), f.MinPriority, f.MaxPriority, queues,
	).Scan(&idStr)
	if err != nil {
		if isNoRows(err) {
			return id.Nil, nil
		}
		return id.Nil, fmt.Errorf("delayed/postgres: find and lock: %w", err)
	}

	jobID, err := id.ParseJobID(idStr)
	if err != nil {
		return id.Nil, fmt.Errorf("delayed/postgres: parse job id %q: %w", idStr, err)
	}
	return jobID, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM delayed_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, delayed.ErrJobNotFound
		}
		return nil, fmt.Errorf("delayed/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE delayed_jobs SET
			priority = $2, attempts = $3, handler = $4, queue = $5,
			run_at = $6, locked_at = $7, locked_by = $8, failed_at = $9,
			last_error = $10, updated_at = $11
		WHERE id = $1`,
		j.ID.String(), j.Priority, j.Attempts, j.Handler, j.Queue,
		j.RunAt, j.LockedAt, nullString(j.LockedBy), j.FailedAt,
		j.LastError, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("delayed/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM delayed_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("delayed/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// ClearLocks releases every lock held by worker.
func (s *Store) ClearLocks(ctx context.Context, worker string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delayed_jobs
		SET locked_at = NULL, locked_by = NULL, updated_at = $2
		WHERE locked_by = $1`,
		worker, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("delayed/postgres: clear locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var (
		where []string
		args  []any
	)
	if opts.Queue != "" {
		args = append(args, opts.Queue)
		where = append(where, fmt.Sprintf("queue = $%d", len(args)))
	}
	switch opts.Status {
	case job.StatusFailed:
		where = append(where, "failed_at IS NOT NULL")
	case job.StatusLocked:
		where = append(where, "failed_at IS NULL", "locked_at IS NOT NULL", "locked_by IS NOT NULL")
	case job.StatusPending:
		where = append(where, "failed_at IS NULL", "(locked_at IS NULL OR locked_by IS NULL)")
	}

	query := `SELECT COUNT(*) FROM delayed_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("delayed/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single row into a job.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j        job.Job
		idStr    string
		lockedBy *string
	)
	err := row.Scan(
		&idStr, &j.Priority, &j.Attempts, &j.Handler, &j.Queue, &j.RunAt,
		&j.LockedAt, &lockedBy, &j.FailedAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("delayed/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	if lockedBy != nil {
		j.LockedBy = *lockedBy
	}
	return &j, nil
}
