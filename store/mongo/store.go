package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/delayed/store"
)

// Collection name constants.
const colJobs = "delayed_jobs"

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	db     *mongod.Database
	client *mongod.Client // set only when the store owns the connection
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on db. The caller owns the client lifecycle; Close
// will not disconnect it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a client for uri and returns a store on database. Close
// disconnects the client.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("delayed/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("delayed/mongo: ping: %w", err)
	}
	s := New(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the reservation and lookup indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.jobs().Indexes().CreateMany(ctx, migrationIndexes())
	if err != nil {
		return fmt.Errorf("delayed/mongo: migrate %s indexes: %w", colJobs, err)
	}
	s.logger.Debug("mongo indexes ensured", slog.String("collection", colJobs))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client when the store opened it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) jobs() *mongod.Collection {
	return s.db.Collection(colJobs)
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// migrationIndexes returns the index definitions for the jobs collection.
func migrationIndexes() []mongod.IndexModel {
	return []mongod.IndexModel{
		// Reservation index: matches the FindAndLock sort.
		{Keys: bson.D{
			{Key: "locked_by", Value: -1},
			{Key: "priority", Value: 1},
			{Key: "run_at", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "queue", Value: 1},
			{Key: "failed_at", Value: 1},
		}},
	}
}
