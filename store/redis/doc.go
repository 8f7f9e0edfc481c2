// Package redis implements store.Store on go-redis.
//
// Each job is a Hash. A single Sorted Set scored by run_at indexes every
// job, so reservation only scans jobs that are already due. Reservation,
// enqueue, update and lock clearing run as Lua scripts, which Redis
// executes atomically. Times are stored as Unix microseconds so scripts can
// compare them numerically.
//
// The scripts touch job hashes they discover through the index, so the
// store requires a non-clustered Redis deployment.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
