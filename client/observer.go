package client

import "time"

// Observer receives pipeline instrumentation. Implementations must be safe
// for concurrent use; parallel transfers report from several goroutines.
type Observer interface {
	// ObserveAttempt is called after every transmit attempt. err is nil on
	// success.
	ObserveAttempt(op string, attempt int, err error, d time.Duration)
	// ObserveRetry is called before sleeping ahead of another attempt.
	ObserveRetry(op string, attempt int, delay time.Duration)
	// ObserveIntegrityFailure is called on every CRC-64 mismatch.
	ObserveIntegrityFailure(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, int, error, time.Duration) {}
func (nopObserver) ObserveRetry(string, int, time.Duration)          {}
func (nopObserver) ObserveIntegrityFailure(string)                   {}
