package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the argument type; it must be encodable by the registry's codec.
type Definition[T any] struct {
	// Name is the unique identifier for this job type. It is written into
	// every payload and selects the handler at run time.
	Name string

	// Handler processes the decoded arguments. Records referenced by the
	// payload are available through ref.Record.
	Handler func(ctx context.Context, args T) error

	// Opts are the enqueue defaults for this definition.
	Opts []Option
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, args T) error, opts ...Option) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    opts,
	}
}
