package retry

import (
	"context"
	"time"
)

// Retryer is the retry policy consulted by the execution pipeline.
type Retryer interface {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts() int
	// IsErrorRetryable reports whether err warrants another attempt.
	IsErrorRetryable(err error) bool
	// RetryDelay is the wait before attempt+1, attempt being 0-based.
	RetryDelay(attempt int, err error) time.Duration
}

// Standard combines classifiers, a backoff delayer and an attempt budget.
type Standard struct {
	maxAttempts int
	retryables  []ErrorRetryable
	backoff     BackoffDelayer
}

// Option configures a Standard retryer.
type Option func(*Standard)

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Standard) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff replaces the backoff delayer.
func WithBackoff(b BackoffDelayer) Option {
	return func(s *Standard) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithErrorRetryables replaces the classifiers.
func WithErrorRetryables(r ...ErrorRetryable) Option {
	return func(s *Standard) {
		s.retryables = r
	}
}

// WithAdditionalErrorRetryables appends classifiers to the current set.
func WithAdditionalErrorRetryables(r ...ErrorRetryable) Option {
	return func(s *Standard) {
		s.retryables = append(s.retryables, r...)
	}
}

// NewStandard returns a retryer with three attempts, full jitter backoff
// between 200ms and 20s and the default classifiers.
func NewStandard(opts ...Option) *Standard {
	s := &Standard{
		maxAttempts: DefaultMaxAttempts,
		retryables:  DefaultRetryables(),
		backoff:     NewFullJitter(DefaultBaseDelay, DefaultMaxBackoff),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Standard) MaxAttempts() int { return s.maxAttempts }

// IsErrorRetryable is true when any classifier accepts err. Cancellation
// always wins.
func (s *Standard) IsErrorRetryable(err error) bool {
	if err == nil || IsCanceled(err) {
		return false
	}
	for _, r := range s.retryables {
		if r.IsErrorRetryable(err) {
			return true
		}
	}
	return false
}

func (s *Standard) RetryDelay(attempt int, err error) time.Duration {
	return s.backoff.BackoffDelay(attempt, err)
}

// Nop makes exactly one attempt.
type Nop struct{}

func (Nop) MaxAttempts() int                    { return 1 }
func (Nop) IsErrorRetryable(error) bool         { return false }
func (Nop) RetryDelay(int, error) time.Duration { return 0 }

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
