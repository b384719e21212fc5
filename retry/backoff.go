package retry

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"time"
)

// Defaults used by NewStandard.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxBackoff  = 20 * time.Second
)

// Backoff strategy names accepted by ParseBackoff.
const (
	BackoffFixed       = "fixed"
	BackoffFullJitter  = "full_jitter"
	BackoffEqualJitter = "equal_jitter"
)

// BackoffDelayer computes the wait before the next attempt. attempt is
// 0-based: the delay after the first failure is BackoffDelay(0, err).
type BackoffDelayer interface {
	BackoffDelay(attempt int, err error) time.Duration
}

// Fixed waits the same duration before every retry.
type Fixed struct {
	Delay time.Duration
}

// NewFixed returns a fixed delayer.
func NewFixed(delay time.Duration) *Fixed {
	return &Fixed{Delay: delay}
}

// BackoffDelay returns the configured delay.
func (f *Fixed) BackoffDelay(int, error) time.Duration {
	return f.Delay
}

// FullJitter draws the delay uniformly from [0, min(2^attempt*base, max)).
type FullJitter struct {
	baseDelay  time.Duration
	maxBackoff time.Duration
	ceiling    int
	rand       func() float64
}

// NewFullJitter returns a full jitter delayer. Non-positive arguments fall
// back to the package defaults.
func NewFullJitter(baseDelay, maxBackoff time.Duration) *FullJitter {
	baseDelay, maxBackoff = normalize(baseDelay, maxBackoff)
	return &FullJitter{
		baseDelay:  baseDelay,
		maxBackoff: maxBackoff,
		ceiling:    attemptCeiling(baseDelay),
		rand:       rand.Float64,
	}
}

// BackoffDelay returns a delay in [0, maxBackoff].
func (j *FullJitter) BackoffDelay(attempt int, _ error) time.Duration {
	ceil := capped(attempt, j.ceiling, j.baseDelay, j.maxBackoff)
	return time.Duration(float64(ceil) * j.rand())
}

// EqualJitter keeps half of the exponential delay and randomizes the rest.
type EqualJitter struct {
	baseDelay  time.Duration
	maxBackoff time.Duration
	ceiling    int
	rand       func() float64
}

// NewEqualJitter returns an equal jitter delayer. Non-positive arguments
// fall back to the package defaults.
func NewEqualJitter(baseDelay, maxBackoff time.Duration) *EqualJitter {
	baseDelay, maxBackoff = normalize(baseDelay, maxBackoff)
	return &EqualJitter{
		baseDelay:  baseDelay,
		maxBackoff: maxBackoff,
		ceiling:    attemptCeiling(baseDelay),
		rand:       rand.Float64,
	}
}

// BackoffDelay returns ceil/2 plus a random share of ceil/2, never above
// maxBackoff.
func (j *EqualJitter) BackoffDelay(attempt int, _ error) time.Duration {
	ceil := capped(attempt, j.ceiling, j.baseDelay, j.maxBackoff)
	half := ceil / 2
	delay := half + time.Duration(j.rand()*float64(half+1))
	return min(delay, j.maxBackoff)
}

// ParseBackoff builds a delayer from its configuration name.
func ParseBackoff(name string, baseDelay, maxBackoff time.Duration) (BackoffDelayer, error) {
	switch name {
	case BackoffFixed:
		return NewFixed(baseDelay), nil
	case "", BackoffFullJitter:
		return NewFullJitter(baseDelay, maxBackoff), nil
	case BackoffEqualJitter:
		return NewEqualJitter(baseDelay, maxBackoff), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}

func normalize(baseDelay, maxBackoff time.Duration) (time.Duration, time.Duration) {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	return baseDelay, maxBackoff
}

// attemptCeiling is the largest attempt for which 2^attempt*base still fits
// in a time.Duration.
func attemptCeiling(base time.Duration) int {
	return bits.Len64(uint64(math.MaxInt64/int64(base))) - 1
}

func capped(attempt, ceiling int, base, maxBackoff time.Duration) time.Duration {
	attempt = max(0, min(attempt, ceiling))
	return min(time.Duration(int64(1)<<attempt)*base, maxBackoff)
}
