package payload

import (
	"errors"
	"fmt"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/ref"
)

// Envelope is the decoded form of a job's handler payload.
type Envelope struct {
	// Name selects the registered handler.
	Name string `json:"name" msgpack:"name"`

	// Args holds the handler arguments, encoded with the envelope's codec.
	Args []byte `json:"args,omitempty" msgpack:"args,omitempty"`

	// Refs names the persisted records the handler needs. They are
	// resolved immediately before the handler runs.
	Refs map[string]ref.Ref `json:"refs,omitempty" msgpack:"refs,omitempty"`
}

// Encode builds the payload bytes for a call to the handler name with args.
func Encode(c Codec, name string, args any, refs map[string]ref.Ref) ([]byte, error) {
	if name == "" {
		return nil, errors.New("delayed/payload: handler name is required")
	}

	var raw []byte
	if args != nil {
		var err error
		raw, err = c.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("delayed/payload: encode args for %q: %w", name, err)
		}
	}

	data, err := c.Marshal(Envelope{Name: name, Args: raw, Refs: refs})
	if err != nil {
		return nil, fmt.Errorf("delayed/payload: encode envelope for %q: %w", name, err)
	}
	return data, nil
}

// Decode parses payload bytes. A payload that cannot be parsed, or that has
// no handler name, fails with a *delayed.DeserializationError.
func Decode(c Codec, data []byte) (*Envelope, error) {
	var env Envelope
	if err := c.Unmarshal(data, &env); err != nil {
		return nil, &delayed.DeserializationError{Err: err}
	}
	if env.Name == "" {
		return nil, &delayed.DeserializationError{Err: errors.New("missing handler name")}
	}
	return &env, nil
}

// DecodeArgs decodes the envelope's arguments into v. Empty arguments leave
// v untouched.
func (e *Envelope) DecodeArgs(c Codec, v any) error {
	if len(e.Args) == 0 {
		return nil
	}
	if err := c.Unmarshal(e.Args, v); err != nil {
		return &delayed.DeserializationError{Err: fmt.Errorf("args for %q: %w", e.Name, err)}
	}
	return nil
}
