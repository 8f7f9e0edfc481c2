package delayed

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore          = errors.New("delayed: no store configured")
	ErrStoreUnavailable = errors.New("delayed: store unavailable")

	// ErrNotFound is the root of every not-found condition. Record lookups
	// wrap it so that reference resolution can recognise a miss regardless
	// of which record type was looked up.
	ErrNotFound    = errors.New("delayed: record not found")
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("delayed: job already exists")

	// ErrRecordVanished is returned by a reservation whose atomic lock
	// matched a job that was gone by the time it was re-read.
	ErrRecordVanished = errors.New("delayed: reserved job vanished before it could be read")

	// Payload errors.
	ErrDeserialization   = errors.New("delayed: payload deserialization failed")
	ErrUnknownRecordType = errors.New("delayed: unknown record type")

	// Config errors.
	ErrInvalidConfig = errors.New("delayed: invalid config")
)

// DeserializationError reports that a job payload cannot be turned back into
// something runnable, most often because a record it references no longer
// exists. It is permanent: running the job again will fail the same way.
type DeserializationError struct {
	// Type and ID identify the referenced record, when the failure came from
	// resolving a reference. Both are empty for malformed payloads.
	Type string
	ID   string
	Err  error
}

func (e *DeserializationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("delayed: deserialize payload: %v", e.Err)
	}
	return fmt.Sprintf("delayed: deserialize payload: %s %q: %v", e.Type, e.ID, e.Err)
}

// Unwrap exposes the cause, except a store not-found condition: a missing
// referenced record is a permanent payload failure and must not match
// ErrNotFound or ErrJobNotFound.
func (e *DeserializationError) Unwrap() error {
	if errors.Is(e.Err, ErrNotFound) {
		return nil
	}
	return e.Err
}

// Is makes every DeserializationError match ErrDeserialization.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}
