// Package ref resolves record references embedded in job payloads.
//
// A payload may carry a [Ref] (a type tag plus an identity) instead of an
// inline copy of a persisted record. When the payload is deserialized, the
// [Resolver] maps the type tag to a registered lookup function and loads the
// live record. A reference that cannot be resolved, because the record is
// gone or the type tag is unknown, fails with a *delayed.DeserializationError
// rather than the store's own not-found error:
//
//	r := ref.NewResolver()
//	r.Register("user", func(ctx context.Context, id string) (any, error) {
//	    return users.Get(ctx, id)
//	})
//
//	rec, err := r.Resolve(ctx, "user", "usr_01h2...")
//	if errors.Is(err, delayed.ErrDeserialization) {
//	    // permanently unprocessable payload
//	}
//
// Handlers read resolved records back out of the context with [Record].
package ref
