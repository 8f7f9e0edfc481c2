package job

import (
	"context"
	"fmt"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/id"
	"github.com/xraph/delayed/ref"
)

// RefType is the type tag under which jobs are resolvable.
const RefType = "job"

// Ref returns a reference to j suitable for embedding in another payload.
func (j *Job) Ref() ref.Ref {
	return ref.Ref{Type: RefType, ID: j.ID.String()}
}

// RegisterRefs makes jobs in s resolvable through r under RefType.
func RegisterRefs(r *ref.Resolver, s Store) {
	r.Register(RefType, func(ctx context.Context, raw string) (any, error) {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", delayed.ErrJobNotFound, err)
		}
		return s.GetJob(ctx, jobID)
	})
}
