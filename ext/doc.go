// Package ext defines the extension system for delayed.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics or writing audit logs. Each lifecycle hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobReserved]: a worker locked the job
//   - [JobCompleted]: the job finished successfully and was removed
//   - [JobRetrying]: the job failed and was rescheduled
//   - [JobFailed]: the job failed permanently
//
// # Worker Hooks
//
//   - [LocksCleared]: the locks held by a worker identity were released
//   - [Shutdown]: a worker pool is shutting down gracefully
//
// Hook errors are logged and never interrupt job processing.
package ext
