package retry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/retry"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func serviceErr(status int, code string) error {
	return &oss.Error{Kind: oss.KindService, StatusCode: status, Code: code}
}

func TestStandard_IsErrorRetryable(t *testing.T) {
	r := retry.NewStandard()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "401", err: serviceErr(401, "InvalidAccessKeyId"), want: true},
		{name: "403", err: serviceErr(403, "AccessDenied"), want: false},
		{name: "404", err: serviceErr(404, "NoSuchKey"), want: false},
		{name: "408", err: serviceErr(408, ""), want: true},
		{name: "429", err: serviceErr(429, ""), want: true},
		{name: "500", err: serviceErr(500, "InternalError"), want: true},
		{name: "503", err: serviceErr(503, ""), want: true},
		{name: "skewed on 403", err: serviceErr(403, "RequestTimeTooSkewed"), want: true},
		{name: "bad request code", err: serviceErr(400, "BadRequest"), want: true},
		{name: "other 400", err: serviceErr(400, "InvalidArgument"), want: false},
		{name: "transport", err: oss.NewError(oss.KindTransport, "put", errors.New("reset")), want: true},
		{name: "timeout kind", err: oss.NewError(oss.KindTimeout, "put", errors.New("slow")), want: true},
		{name: "request kind", err: oss.NewError(oss.KindRequest, "put", errors.New("rewind")), want: true},
		{name: "integrity", err: oss.IntegrityError("get", 1, 2), want: true},
		{name: "argument", err: oss.Argumentf("sign", "missing"), want: false},
		{name: "raw net timeout", err: fmt.Errorf("read: %w", timeoutErr{}), want: true},
		{name: "unexpected eof", err: fmt.Errorf("body: %w", io.ErrUnexpectedEOF), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "canceled kind", err: oss.NewError(oss.KindCanceled, "get", context.Canceled), want: false},
		{name: "deadline wraps timeout", err: fmt.Errorf("%w: %w", context.DeadlineExceeded, timeoutErr{}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsErrorRetryable(tt.err))
		})
	}
}

func TestStandard_Options(t *testing.T) {
	r := retry.NewStandard(
		retry.WithMaxAttempts(5),
		retry.WithBackoff(retry.NewFixed(time.Second)),
		retry.WithErrorRetryables(retry.ErrorRetryableFunc(func(err error) bool {
			return err.Error() == "again"
		})),
	)
	assert.Equal(t, 5, r.MaxAttempts())
	assert.Equal(t, time.Second, r.RetryDelay(3, nil))
	assert.True(t, r.IsErrorRetryable(errors.New("again")))
	assert.False(t, r.IsErrorRetryable(serviceErr(500, "")))

	r = retry.NewStandard(retry.WithMaxAttempts(0))
	assert.Equal(t, retry.DefaultMaxAttempts, r.MaxAttempts())

	r = retry.NewStandard(retry.WithAdditionalErrorRetryables(retry.ErrorRetryableFunc(func(err error) bool { return true })))
	assert.True(t, r.IsErrorRetryable(errors.New("anything")))
	assert.False(t, r.IsErrorRetryable(context.Canceled))
}

func TestNop(t *testing.T) {
	var r retry.Retryer = retry.Nop{}
	assert.Equal(t, 1, r.MaxAttempts())
	assert.False(t, r.IsErrorRetryable(serviceErr(500, "")))
	assert.Zero(t, r.RetryDelay(1, nil))
}

func TestSleep(t *testing.T) {
	require.NoError(t, retry.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := retry.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
