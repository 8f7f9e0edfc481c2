// Package job defines the persisted job record, the eligibility filter used
// to reserve it, typed handler definitions, and the store contract.
//
// # Job Record
//
// A [Job] is one queued unit of work. Its handler payload is opaque to this
// package; see the payload package for its format. Fields of note:
//   - Priority: lower values are reserved first (default 0)
//   - RunAt: earliest time the job may be reserved (defaults to creation)
//   - LockedAt / LockedBy: the current reservation, always set together
//   - FailedAt: non-nil marks the job permanently excluded
//
// # Reservation
//
// A [Filter] is the predicate "reservable now, by this worker". A job
// matches when it is due, not failed, inside the configured priority and
// queue bounds, and either unlocked, locked by the same worker, or locked
// longer than the maximum run time ago. Among matches, [ReserveLess]
// defines the order: locked_by descending (so a worker's own lock wins),
// then priority ascending, then run_at ascending.
//
// Every backend renders the same Filter into its own atomic
// find-and-modify primitive; [Store.FindAndLock] is the only place a lock is
// taken.
//
// # Defining a Job
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(ctx, in.To, in.Subject)
//	    },
//	    job.WithQueue("mail"),
//	)
//
//	job.RegisterDefinition(registry, SendEmail)
//	j, err := job.Enqueue(ctx, store, codec, SendEmail, EmailInput{To: "a@b.c"}, nil)
package job
