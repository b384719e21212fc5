package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/sagarc03/oss"
)

// ErrorRetryable decides whether one error class is worth another attempt.
type ErrorRetryable interface {
	IsErrorRetryable(err error) bool
}

// ErrorRetryableFunc adapts a function to ErrorRetryable.
type ErrorRetryableFunc func(err error) bool

func (f ErrorRetryableFunc) IsErrorRetryable(err error) bool { return f(err) }

// HTTPStatusCodeRetryable retries throttling, timeouts, expired
// authentication and server faults.
type HTTPStatusCodeRetryable struct{}

func (HTTPStatusCodeRetryable) IsErrorRetryable(err error) bool {
	var se interface{ HTTPStatusCode() int }
	if !errors.As(err, &se) {
		return false
	}
	code := se.HTTPStatusCode()
	switch {
	case code == http.StatusUnauthorized,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return true
	}
	return false
}

// RetryableErrorCodes are service error codes retried regardless of status.
var RetryableErrorCodes = map[string]struct{}{
	"RequestTimeTooSkewed": {},
	"BadRequest":           {},
}

// ServiceErrorCodeRetryable retries the codes in RetryableErrorCodes.
type ServiceErrorCodeRetryable struct{}

func (ServiceErrorCodeRetryable) IsErrorRetryable(err error) bool {
	var se interface{ ErrorCode() string }
	if !errors.As(err, &se) {
		return false
	}
	_, ok := RetryableErrorCodes[se.ErrorCode()]
	return ok
}

// ClientErrorRetryable retries local faults: connection failures, read and
// write timeouts, request rebuild failures and integrity mismatches.
type ClientErrorRetryable struct{}

func (ClientErrorRetryable) IsErrorRetryable(err error) bool {
	switch oss.KindOf(err) {
	case oss.KindTransport, oss.KindTimeout, oss.KindRequest, oss.KindIntegrity:
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsCanceled reports whether err stems from the caller canceling the
// operation. Canceled errors are never retried.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		oss.KindOf(err) == oss.KindCanceled
}

// DefaultRetryables returns the classifiers used by NewStandard.
func DefaultRetryables() []ErrorRetryable {
	return []ErrorRetryable{
		HTTPStatusCodeRetryable{},
		ServiceErrorCodeRetryable{},
		ClientErrorRetryable{},
	}
}
