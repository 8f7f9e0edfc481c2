package ref

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xraph/delayed"
)

// Ref points at a persisted record by type tag and identity.
type Ref struct {
	Type string `json:"type" msgpack:"type"`
	ID   string `json:"id"   msgpack:"id"`
}

// String returns "type/id".
func (r Ref) String() string { return r.Type + "/" + r.ID }

// LookupFunc loads the record with the given identity. It should return an
// error matching delayed.ErrNotFound when no such record exists.
type LookupFunc func(ctx context.Context, id string) (any, error)

// Records holds resolved records keyed by the name they had in the payload.
type Records map[string]any

// Resolver maps type tags to lookup functions.
// It is safe for concurrent use.
type Resolver struct {
	mu      sync.RWMutex
	lookups map[string]LookupFunc
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{lookups: make(map[string]LookupFunc)}
}

// Register binds a type tag to its lookup function, replacing any previous
// binding for the same tag.
func (r *Resolver) Register(typeName string, fn LookupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[typeName] = fn
}

// Types returns the registered type tags in sorted order.
func (r *Resolver) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.lookups))
	for name := range r.lookups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve loads the record identified by typeName and id.
//
// A missing record, a lookup that returns nil, or an unregistered type tag
// all fail with a *delayed.DeserializationError. Any other lookup error is
// returned wrapped, so transient store failures stay retryable.
func (r *Resolver) Resolve(ctx context.Context, typeName, id string) (any, error) {
	r.mu.RLock()
	fn, ok := r.lookups[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, &delayed.DeserializationError{Type: typeName, ID: id, Err: delayed.ErrUnknownRecordType}
	}

	rec, err := fn(ctx, id)
	if err != nil {
		if errors.Is(err, delayed.ErrNotFound) {
			return nil, &delayed.DeserializationError{Type: typeName, ID: id, Err: err}
		}
		return nil, fmt.Errorf("delayed/ref: resolve %s %q: %w", typeName, id, err)
	}
	if isNil(rec) {
		return nil, &delayed.DeserializationError{Type: typeName, ID: id, Err: delayed.ErrNotFound}
	}
	return rec, nil
}

// ResolveAll resolves every reference in refs. It stops at the first
// failure.
func (r *Resolver) ResolveAll(ctx context.Context, refs map[string]Ref) (Records, error) {
	out := make(Records, len(refs))
	for name, rf := range refs {
		rec, err := r.Resolve(ctx, rf.Type, rf.ID)
		if err != nil {
			return nil, err
		}
		out[name] = rec
	}
	return out, nil
}

type recordsKey struct{}

// WithRecords returns a context carrying resolved records.
func WithRecords(ctx context.Context, recs Records) context.Context {
	return context.WithValue(ctx, recordsKey{}, recs)
}

// RecordsFromContext returns the records stored by WithRecords.
func RecordsFromContext(ctx context.Context) Records {
	recs, _ := ctx.Value(recordsKey{}).(Records)
	return recs
}

// Record returns the resolved record stored under name, asserted to T.
func Record[T any](ctx context.Context, name string) (T, bool) {
	var zero T
	v, ok := RecordsFromContext(ctx)[name]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// isNil also catches typed nil pointers returned through the any result.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
