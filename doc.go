// Package delayed provides the reservation core of a persistence-backed,
// multi-process job queue. Workers in independent processes compete for
// pending jobs stored in a shared collection; a single atomic
// find-and-lock request against the store guarantees that exactly one
// worker wins each job.
//
// # Quick Start
//
//	s := mongostore.New(client.Database("app"))
//	engine := reserve.NewEngine(s, reserve.WithCriteria(job.CriteriaFromConfig(cfg)))
//	j, err := engine.Reserve(ctx, "host:web-1 pid:4242", 4*time.Hour)
//
// # Architecture
//
// The [job] package defines the persisted record, the eligibility filter and
// the store contract. Backends under store/ render the filter into their own
// atomic primitive (MongoDB findAndModify, PostgreSQL SKIP LOCKED, a Redis
// Lua script, or a mutex for the in-memory store). The [reserve] package
// issues reservations and bulk-clears locks. The [ref] package resolves
// record references embedded in job payloads.
//
// The worker package runs reserved jobs and owns the polling loops, and
// cmd/delayed is the operator CLI (work, clear-locks, stats, migrate).
//
// Job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based identifiers.
package delayed
