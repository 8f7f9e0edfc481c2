// Package reserve claims jobs for workers and releases their claims.
//
// An [Engine] reserves one job per call. It builds a [job.Filter] for the
// requesting worker, asks the store to find and lock the first match in a
// single atomic step, and then re-reads the full record. The atomic step is
// the only point where workers serialize, so two workers can never hold the
// same job at once.
//
// Reserve has three ordinary outcomes:
//
//   - a locked job, ready to run;
//   - nil with a nil error when nothing is eligible;
//   - [delayed.ErrRecordVanished] when the locked job was deleted before it
//     could be re-read.
//
// A store failure during reservation is logged, traced and counted, then
// reported as "no job" so polling loops keep running. Pass
// [WithSurfaceStoreErrors] to receive an error wrapping
// [delayed.ErrStoreUnavailable] instead.
//
// A [LockManager] clears every lock held by one worker identity, which a
// worker does when it shuts down cleanly.
//
//	engine := reserve.NewEngine(s, reserve.WithCriteria(job.CriteriaFromConfig(cfg)))
//	j, err := engine.Reserve(ctx, "host:web-1 pid:4242", cfg.MaxRunTime)
package reserve
