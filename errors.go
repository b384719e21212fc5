package oss

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per error Kind. Use errors.Is to test an error
// returned by this module against them.
var (
	// ErrArgument is returned when required signing or request inputs are missing.
	ErrArgument = errors.New("invalid argument")
	// ErrService is returned when the service answers with a non-2xx status.
	ErrService = errors.New("service error")
	// ErrIntegrity is returned when a transferred checksum does not match.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrTimeout is returned when a read or write deadline is exceeded.
	ErrTimeout = errors.New("timeout")
	// ErrCanceled is returned when the caller canceled the operation.
	ErrCanceled = errors.New("canceled")
	// ErrTransport is returned on connection level failures.
	ErrTransport = errors.New("transport error")
	// ErrRequest is returned when a request could not be built or resent.
	ErrRequest = errors.New("request error")
)

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindArgument
	KindService
	KindIntegrity
	KindTimeout
	KindCanceled
	KindTransport
	KindRequest
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindArgument:  "argument",
	KindService:   "service",
	KindIntegrity: "integrity",
	KindTimeout:   "timeout",
	KindCanceled:  "canceled",
	KindTransport: "transport",
	KindRequest:   "request",
}

var kindSentinels = map[Kind]error{
	KindArgument:  ErrArgument,
	KindService:   ErrService,
	KindIntegrity: ErrIntegrity,
	KindTimeout:   ErrTimeout,
	KindCanceled:  ErrCanceled,
	KindTransport: ErrTransport,
	KindRequest:   ErrRequest,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the structured error returned by the signing and execution core.
// Service fields (StatusCode, Code, Message, RequestID, EC) are only set for
// KindService errors.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	EC         string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Kind == KindService {
		fmt.Fprintf(&b, " (status=%d code=%s request_id=%s", e.StatusCode, e.Code, e.RequestID)
		if e.EC != "" {
			fmt.Fprintf(&b, " ec=%s", e.EC)
		}
		b.WriteString(")")
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel matching the error kind.
func (e *Error) Is(target error) bool {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s == target
	}
	return false
}

// HTTPStatusCode returns the response status, or 0 for local faults.
func (e *Error) HTTPStatusCode() int { return e.StatusCode }

// ErrorCode returns the service error code, or "" for local faults.
func (e *Error) ErrorCode() string { return e.Code }

// NewError wraps err with the given kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Argumentf returns a KindArgument error with a formatted message.
func Argumentf(op, format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Op: op, Err: fmt.Errorf(format, args...)}
}

// IntegrityError reports a checksum mismatch between what the client computed
// and what the service reported.
func IntegrityError(op string, client, server uint64) *Error {
	return &Error{
		Kind: KindIntegrity,
		Op:   op,
		Err:  fmt.Errorf("crc64 mismatch: client %d, server %d", client, server),
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// WithAttempts records the attempt count on the first *Error in err's chain,
// wrapping err in a new *Error when there is none.
func WithAttempts(err error, op string, attempts int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.Attempts = attempts
		if e.Op == "" {
			e.Op = op
		}
		return err
	}
	return &Error{Kind: KindUnknown, Op: op, Attempts: attempts, Err: err}
}
