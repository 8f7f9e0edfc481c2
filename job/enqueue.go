package job

import (
	"context"
	"fmt"

	"github.com/xraph/delayed/payload"
	"github.com/xraph/delayed/ref"
)

// Enqueue encodes a call to def with args and persists it as a new job.
// Options passed here override the definition's defaults.
func Enqueue[T any](
	ctx context.Context,
	s Store,
	r *Registry,
	def *Definition[T],
	args T,
	refs map[string]ref.Ref,
	opts ...Option,
) (*Job, error) {
	data, err := payload.Encode(r.Codec(), def.Name, args, refs)
	if err != nil {
		return nil, err
	}

	all := make([]Option, 0, len(def.Opts)+len(opts))
	all = append(all, def.Opts...)
	all = append(all, opts...)

	j := New(data, all...)
	if err := s.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueue %q: %w", def.Name, err)
	}
	return j, nil
}
