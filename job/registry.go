package job

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/delayed/payload"
)

// HandlerFunc is a type-erased job handler. It receives the decoded
// envelope; the typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over argument decoding.
type HandlerFunc func(ctx context.Context, env *payload.Envelope) error

// Registry maps job names to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	codec    payload.Codec
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty job registry whose payloads use codec.
// A nil codec selects JSON.
func NewRegistry(codec payload.Codec) *Registry {
	if codec == nil {
		codec = payload.JSONCodec{}
	}
	return &Registry{
		codec:    codec,
		handlers: make(map[string]HandlerFunc),
	}
}

// Codec returns the payload codec handlers decode with.
func (r *Registry) Codec() payload.Codec { return r.codec }

// RegisterDefinition registers a typed job definition.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, env *payload.Envelope) error {
		var args T
		if err := env.DecodeArgs(r.codec, &args); err != nil {
			return err
		}
		return def.Handler(ctx, args)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
}

// Get returns the handler for the given job name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered job names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
