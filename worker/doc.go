// Package worker runs reserved jobs.
//
// An [Executor] decodes a job's payload, resolves the records it references,
// runs the registered handler through middleware and then records the
// outcome: a successful job is deleted, a failed one is rescheduled with
// backoff, and a job that can never succeed is marked failed.
//
// A [Pool] runs one reservation loop per configured concurrency slot. Each
// loop reserves under its own worker identity, so a lock always names the
// loop that holds it. Stopping a pool releases every lock its loops still
// hold.
package worker
