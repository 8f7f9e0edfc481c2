// Package id defines the identifier of persisted jobs.
//
// A job ID is a TypeID with the "job" prefix: a UUIDv7 suffix rendered in
// base32, so IDs generated later sort after IDs generated earlier. Stores
// persist the string form and use it as the final reservation tiebreak.
package id

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix is the type tag of a TypeID.
type Prefix string

// PrefixJob is carried by every job ID.
const PrefixJob Prefix = "job"

// ID identifies one job record. The zero value is Nil and means "not yet
// assigned"; stores assign an ID on enqueue when the job has none.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// JobID names an ID used as a job reference.
type JobID = ID

// Nil is the unassigned ID.
var Nil ID

// NewJobID generates a new job ID. It panics only if the TypeID library
// rejects the job prefix, which cannot happen for a constant.
func NewJobID() ID {
	tid, err := typeid.Generate(string(PrefixJob))
	if err != nil {
		panic(fmt.Sprintf("id: generate job id: %v", err))
	}
	return ID{inner: tid, valid: true}
}

// ParseJobID parses the string form of a job ID, e.g.
// "job_01h2xcejqtf2nbrexx3vqjhp41". IDs with another prefix are rejected.
func ParseJobID(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse job id: empty string")
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse job id %q: %w", s, err)
	}
	if p := Prefix(tid.Prefix()); p != PrefixJob {
		return Nil, fmt.Errorf("id: parse job id %q: prefix %q, want %q", s, p, PrefixJob)
	}

	return ID{inner: tid, valid: true}, nil
}

// MustParseJobID is like ParseJobID but panics on error. Tests use it for
// fixed IDs.
func MustParseJobID(s string) ID {
	parsed, err := ParseJobID(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

// String returns "job_<suffix>", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the type tag, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether the ID is unassigned.
func (i ID) IsNil() bool { return !i.valid }

// Compare orders IDs by their string form, which is also creation order.
// Nil sorts first.
func (i ID) Compare(other ID) int {
	return strings.Compare(i.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := ParseJobID(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
