package backoff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidStrategy is returned by Parse for a malformed description.
var ErrInvalidStrategy = errors.New("backoff: invalid strategy")

// Parse builds a Strategy from a short description, as accepted by the
// work command's --backoff flag:
//
//	polynomial                  attempt^4 s + 5s (the default)
//	polynomial:<power>,<offset> e.g. polynomial:3,10s
//	constant:<interval>         e.g. constant:30s
//	exponential:<initial>,<max> e.g. exponential:1s,6h (max 0 = uncapped)
//	jitter:<initial>,<max>      exponential with full jitter
//
// An empty description selects the default.
func Parse(desc string) (Strategy, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return DefaultStrategy(), nil
	}

	kind, rawArgs, _ := strings.Cut(desc, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	var args []string
	if rawArgs != "" {
		args = strings.Split(rawArgs, ",")
	}

	invalid := func(want string) error {
		return fmt.Errorf("%w: %q: want %s", ErrInvalidStrategy, desc, want)
	}

	switch kind {
	case "polynomial":
		if len(args) == 0 {
			return DefaultStrategy(), nil
		}
		if len(args) != 2 {
			return nil, invalid("polynomial:<power>,<offset>")
		}
		power, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
		if err != nil || power < 0 {
			return nil, invalid("a non-negative power")
		}
		d, err := parseDurations(args[1:])
		if err != nil {
			return nil, invalid("a duration offset")
		}
		return NewPolynomial(power, d[0]), nil

	case "constant":
		d, err := parseDurations(args)
		if err != nil || len(d) != 1 {
			return nil, invalid("constant:<interval>")
		}
		return NewConstant(d[0]), nil

	case "exponential", "jitter":
		d, err := parseDurations(args)
		if err != nil || len(d) != 2 {
			return nil, invalid(kind + ":<initial>,<max>")
		}
		if d[1] > 0 && d[1] < d[0] {
			return nil, invalid("max >= initial")
		}
		return NewExponential(d[0], d[1], kind == "jitter"), nil
	}

	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, kind)
}

func parseDurations(args []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(args))
	for _, a := range args {
		d, err := time.ParseDuration(strings.TrimSpace(a))
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("negative duration %s", d)
		}
		out = append(out, d)
	}
	return out, nil
}
