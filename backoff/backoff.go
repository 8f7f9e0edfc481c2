// Package backoff computes how long a failed job waits before it becomes
// reservable again. After a job's n-th failed run the executor sets
// run_at = now + Delay(n), unless n has reached the attempt limit.
//
// Strategies are stateless and safe for concurrent use. Every strategy has
// a String form that Parse accepts, so a configured policy can be logged
// and read back.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// MaxDelay bounds every delay. Large attempt counts would otherwise
// overflow time.Duration and schedule the retry in the past.
const MaxDelay = 365 * 24 * time.Hour

// Strategy computes the delay before a job is retried.
type Strategy interface {
	// Delay returns the wait after the attempt-th failed run (1-indexed).
	Delay(attempt int) time.Duration
}

// DefaultStrategy returns attempt^4 seconds plus 5s: the 25th attempt, the
// default limit, waits about 4.5 days.
func DefaultStrategy() Strategy {
	return NewPolynomial(4, 5*time.Second)
}

// Window returns the longest total time a job can spend waiting between
// runs before its maxAttempts-th failure marks it failed. For jittered
// strategies it uses the jitter ceiling.
func Window(s Strategy, maxAttempts int) time.Duration {
	var total time.Duration
	for n := 1; n < maxAttempts; n++ {
		d := s.Delay(n)
		if e, ok := s.(*Exponential); ok {
			d = e.ceiling(n)
		}
		if total > math.MaxInt64-d {
			return math.MaxInt64
		}
		total += d
	}
	return total
}

// Polynomial waits attempt^Power seconds plus Offset.
type Polynomial struct {
	Power  float64
	Offset time.Duration
}

// NewPolynomial creates a polynomial strategy.
func NewPolynomial(power float64, offset time.Duration) *Polynomial {
	return &Polynomial{Power: power, Offset: offset}
}

func (p *Polynomial) Delay(attempt int) time.Duration {
	return seconds(math.Pow(float64(max(attempt, 0)), p.Power)) + p.Offset
}

func (p *Polynomial) String() string {
	return fmt.Sprintf("polynomial:%g,%s", p.Power, p.Offset)
}

// Constant waits the same interval after every failure.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: min(interval, MaxDelay)}
}

func (c *Constant) Delay(int) time.Duration { return c.Interval }

func (c *Constant) String() string {
	return fmt.Sprintf("constant:%s", c.Interval)
}

// Exponential doubles the wait with each failure, from Initial up to Max.
// With Jitter set the delay is drawn uniformly from [0, that value], which
// spreads out jobs that failed together (for example on a shared outage)
// so they are not all reservable at the same instant.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy. A zero max leaves only
// MaxDelay as the cap.
func NewExponential(initial, maxDelay time.Duration, jitter bool) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: jitter}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.ceiling(attempt)
	if e.Jitter {
		return time.Duration(rand.Float64() * float64(d)) //nolint:gosec // jitter does not need crypto rand
	}
	return d
}

// ceiling is the delay before jitter.
func (e *Exponential) ceiling(attempt int) time.Duration {
	d := seconds(e.Initial.Seconds() * math.Pow(2, float64(max(attempt, 1)-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

func (e *Exponential) String() string {
	kind := "exponential"
	if e.Jitter {
		kind = "jitter"
	}
	return fmt.Sprintf("%s:%s,%s", kind, e.Initial, e.Max)
}

// seconds converts to a Duration, saturating at MaxDelay.
func seconds(s float64) time.Duration {
	if math.IsNaN(s) || s >= MaxDelay.Seconds() {
		return MaxDelay
	}
	return time.Duration(s * float64(time.Second))
}
