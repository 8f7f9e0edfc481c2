package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/job"
)

// reserveSort is the reservation order. Descending locked_by puts a
// worker's own locks ahead of unlocked jobs, whose null sorts lowest.
var reserveSort = bson.D{
	{Key: "locked_by", Value: -1},
	{Key: "priority", Value: 1},
	{Key: "run_at", Value: 1},
	{Key: "_id", Value: 1},
}

// EnqueueJob persists a new job.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	j.ApplyDefaults(now())
	_, err := s.jobs().InsertOne(ctx, toJobModel(j))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return delayed.ErrJobAlreadyExists
		}
		return fmt.Errorf("delayed/mongo: enqueue job: %w", err)
	}
	return nil
}

// FindAndLock claims the first eligible job with one FindOneAndUpdate.
func (s *Store) FindAndLock(ctx context.Context, f job.Filter) (id.JobID, error) {
	update := bson.M{
		"$set": bson.M{
			"locked_at":  f.Now,
			"locked_by":  f.Worker,
			"updated_at": f.Now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetSort(reserveSort).
		SetProjection(bson.M{"_id": 1})

	var res struct {
		ID string `bson:"_id"`
	}
	err := s.jobs().FindOneAndUpdate(ctx, reserveFilter(f), update, opts).Decode(&res)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return id.Nil, nil
		}
		return id.Nil, fmt.Errorf("delayed/mongo: find and lock: %w", err)
	}

	jobID, err := id.ParseJobID(res.ID)
	if err != nil {
		return id.Nil, fmt.Errorf("delayed/mongo: parse job id %q: %w", res.ID, err)
	}
	return jobID, nil
}

// reserveFilter renders f as a query document.
func reserveFilter(f job.Filter) bson.M {
	filter := bson.M{
		"run_at":    bson.M{"$lte": f.Now},
		"failed_at": nil,
		"$or": bson.A{
			bson.M{"locked_by": f.Worker},
			bson.M{"locked_at": nil},
			bson.M{"locked_at": bson.M{"$lte": f.StaleBefore()}},
		},
	}

	if f.MinPriority != nil || f.MaxPriority != nil {
		prio := bson.M{}
		if f.MinPriority != nil {
			prio["$gte"] = *f.MinPriority
		}
		if f.MaxPriority != nil {
			prio["$lte"] = *f.MaxPriority
		}
		filter["priority"] = prio
	}

	if len(f.Queues) > 0 {
		filter["queue"] = bson.M{"$in": f.Queues}
	}
	return filter
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.jobs().FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, delayed.ErrJobNotFound
		}
		return nil, fmt.Errorf("delayed/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = now()
	m := toJobModel(j)
	res, err := s.jobs().ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("delayed/mongo: update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.jobs().DeleteOne(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return fmt.Errorf("delayed/mongo: delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return delayed.ErrJobNotFound
	}
	return nil
}

// ClearLocks releases every lock held by worker.
func (s *Store) ClearLocks(ctx context.Context, worker string) (int64, error) {
	res, err := s.jobs().UpdateMany(ctx,
		bson.M{"locked_by": worker},
		bson.M{"$set": bson.M{
			"locked_at":  nil,
			"locked_by":  nil,
			"updated_at": now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("delayed/mongo: clear locks: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}

	switch opts.Status {
	case job.StatusFailed:
		filter["failed_at"] = bson.M{"$ne": nil}
	case job.StatusLocked:
		filter["failed_at"] = nil
		filter["locked_at"] = bson.M{"$ne": nil}
		filter["locked_by"] = bson.M{"$ne": nil}
	case job.StatusPending:
		filter["failed_at"] = nil
		filter["$or"] = bson.A{
			bson.M{"locked_at": nil},
			bson.M{"locked_by": nil},
		}
	}

	count, err := s.jobs().CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delayed/mongo: count jobs: %w", err)
	}
	return count, nil
}
