package store

import (
	"context"

	"github.com/xraph/delayed/job"
)

// Store is the aggregate persistence interface. The job package owns the
// reservation contract; Store adds the lifecycle every backend shares.
type Store interface {
	job.Store

	// Migrate creates or updates the schema and the reservation index.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
