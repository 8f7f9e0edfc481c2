package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/delayed/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.Cmdable
	owned  *goredis.Client // set only when the store opened the client
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens a client for a redis:// URL. Close closes the client.
func Connect(ctx context.Context, url string, opts ...Option) (*Store, error) {
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("delayed/redis: parse url: %w", err)
	}
	client := goredis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("delayed/redis: ping: %w", err)
	}
	s := New(client, opts...)
	s.owned = client
	return s, nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate preloads the Lua scripts so the first reservation does not pay
// for a script load.
func (s *Store) Migrate(ctx context.Context) error {
	for _, script := range []*goredis.Script{enqueueScript, updateScript, findAndLockScript, clearLocksScript} {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return fmt.Errorf("delayed/redis: load script: %w", err)
		}
	}
	s.logger.Debug("redis scripts loaded")
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client when the store opened it.
func (s *Store) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close()
}
