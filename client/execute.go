package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/crc"
	"github.com/sagarc03/oss/retry"
	"github.com/sagarc03/oss/signer"
	"github.com/sagarc03/oss/stream"
)

// Options are per-call overrides of the client configuration.
type Options struct {
	Retryer           retry.Retryer
	AdditionalHeaders []string
	DisableUploadCRC  bool
}

func (c *Client) callOptions(optFns []func(*Options)) Options {
	opts := Options{
		Retryer:           c.retryer,
		AdditionalHeaders: c.cfg.AdditionalHeaders,
		DisableUploadCRC:  c.cfg.DisableUploadCRC,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retryer == nil {
		opts.Retryer = retry.Nop{}
	}
	return opts
}

// Execute builds, signs and sends one operation, retrying failed attempts
// as the retryer allows. A seekable body is rewound before every attempt;
// any other body disables retries. On success the caller owns out.Body.
//
// Errors are *oss.Error values with Attempts set.
func (c *Client) Execute(ctx context.Context, in *oss.OperationInput, optFns ...func(*Options)) (*oss.OperationOutput, error) {
	if in == nil {
		return nil, oss.Argumentf("execute", "operation input is required")
	}
	op := in.OpName
	if op == "" {
		op = in.Method
	}
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	opts := c.callOptions(optFns)

	ctx, span := c.tracer.Start(ctx, "oss."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("oss.operation", op),
			attribute.String("oss.bucket", in.Bucket),
			attribute.String("oss.key", in.Key),
			attribute.String("http.request.method", in.Method),
		),
	)
	defer span.End()

	out, err := c.execute(ctx, op, in, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, oss.KindOf(err).String())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", out.StatusCode),
		attribute.Int("oss.attempts", out.Attempts),
	)
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func validateInput(op string, in *oss.OperationInput) error {
	if in.Method == "" {
		return oss.NewError(oss.KindArgument, op, ErrMethodRequired)
	}
	if in.Key != "" && in.Bucket == "" {
		return oss.NewError(oss.KindArgument, op, ErrBucketRequired)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, op string, in *oss.OperationInput, opts Options) (*oss.OperationOutput, error) {
	body, err := newRequestBody(op, in)
	if err != nil {
		return nil, err
	}

	maxAttempts := max(opts.Retryer.MaxAttempts(), 1)
	if !body.rewindable() {
		maxAttempts = 1
	}
	query := encodeParameters(in.Parameters)

	// A skewed clock is corrected for the rest of this call only.
	var clockOffset time.Duration
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, oss.WithAttempts(canceledError(op, err), op, attempts)
		}
		if attempt > 0 {
			if err := body.rewind(); err != nil {
				return nil, oss.WithAttempts(oss.NewError(oss.KindRequest, op, fmt.Errorf("rewind body: %w", err)), op, attempts)
			}
		}

		attempts++
		begin := time.Now()
		out, serverNow, err := c.attempt(ctx, op, in, opts, body, query, clockOffset, attempt)
		c.observer.ObserveAttempt(op, attempt+1, err, time.Since(begin))
		if err == nil {
			out.Attempts = attempts
			return out, nil
		}
		lastErr = err

		if oss.KindOf(err) == oss.KindIntegrity {
			c.observer.ObserveIntegrityFailure(op)
		}
		if retry.IsCanceled(err) {
			return nil, oss.WithAttempts(err, op, attempts)
		}
		if attempt+1 >= maxAttempts || !opts.Retryer.IsErrorRetryable(err) {
			break
		}

		var oe *oss.Error
		if errors.As(err, &oe) && oe.Code == "RequestTimeTooSkewed" && !serverNow.IsZero() {
			clockOffset = serverNow.Sub(c.now())
			c.logger.InfoContext(ctx, "adjusting clock offset", "op", op, "offset", clockOffset)
		}

		delay := opts.Retryer.RetryDelay(attempt, err)
		c.observer.ObserveRetry(op, attempt+1, delay)
		c.logger.WarnContext(ctx, "retrying request",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil, oss.WithAttempts(canceledError(op, err), op, attempts)
		}
	}

	return nil, oss.WithAttempts(lastErr, op, attempts)
}

// attempt runs one Build, Sign, Transmit cycle. The returned time is the
// server clock reported by an error response, zero otherwise.
func (c *Client) attempt(ctx context.Context, op string, in *oss.OperationInput, opts Options,
	body *requestBody, query string, clockOffset time.Duration, attempt int,
) (*oss.OperationOutput, time.Time, error) {
	var none time.Time

	creds, err := c.credentials.GetCredentials(ctx)
	if err != nil {
		if retry.IsCanceled(err) {
			return nil, none, canceledError(op, err)
		}
		return nil, none, oss.NewError(oss.KindArgument, op, fmt.Errorf("get credentials: %w", err))
	}

	u := c.requestURL(in.Bucket, in.Key, query)
	req, err := http.NewRequestWithContext(ctx, in.Method, u.String(), nil)
	if err != nil {
		return nil, none, oss.NewError(oss.KindRequest, op, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range in.Headers {
		if http.CanonicalHeaderKey(k) == oss.HeaderContentLength {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	var (
		sum  *crc.CRC64
		sent *attemptBody
	)
	if body.r != nil {
		var r io.Reader = body.r
		if !opts.DisableUploadCRC {
			sum = crc.NewECMA()
			r = stream.Track(r, sum)
		}
		if body.size == 0 {
			req.Body = http.NoBody
		} else {
			sent = &attemptBody{r: r}
			req.Body = sent
		}
		req.ContentLength = body.size
	}

	// Anonymous credentials send the request unsigned.
	if creds.HasKeys() {
		sc := &signer.SigningContext{
			Product:           c.cfg.Product,
			Region:            c.cfg.Region,
			Bucket:            in.Bucket,
			Key:               in.Key,
			Request:           req,
			Credentials:       &creds,
			Time:              c.now().Add(clockOffset),
			ClockOffset:       clockOffset,
			AdditionalHeaders: opts.AdditionalHeaders,
			SubResources:      in.SubResources,
		}
		if err := c.signer.Sign(ctx, sc); err != nil {
			return nil, none, err
		}
	}

	c.logger.DebugContext(ctx, "sending request",
		"op", op,
		"bucket", in.Bucket,
		"key", in.Key,
		"attempt", attempt+1,
	)

	resp, err := c.httpClient.Do(req)
	// The transport may still be writing the body; nothing reads the
	// source past this point.
	sent.stop()
	if err != nil {
		return nil, none, transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e, serverNow := serviceError(op, resp)
		return nil, serverNow, e
	}

	verified := false
	if sum != nil {
		if v := resp.Header.Get(oss.HeaderOSSCRC64); v != "" {
			server, perr := crc.Parse(v)
			if perr != nil {
				c.logger.WarnContext(ctx, "unparsable crc64 header", "op", op, "value", v)
			} else if client := sum.Sum64(); server != client {
				_ = resp.Body.Close()
				return nil, none, oss.IntegrityError(op, client, server)
			} else {
				verified = true
			}
		}
	}

	return &oss.OperationOutput{
		Input:       in,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		Headers:     resp.Header,
		Body:        resp.Body,
		CRCVerified: verified,
	}, none, nil
}

// requestBody remembers where a body started so it can be resent.
type requestBody struct {
	r      io.Reader
	seeker io.Seeker
	start  int64
	size   int64 // -1 when unknown
}

// adjuster is implemented by stream.Bounded; a part is resent by moving
// the window back over the same bytes.
type adjuster interface {
	Adjust(offset, length int64) error
	Offset() int64
	Size() int64
}

func newRequestBody(op string, in *oss.OperationInput) (*requestBody, error) {
	if in.Body == nil {
		return &requestBody{}, nil
	}
	b := &requestBody{r: in.Body, size: -1}

	if cl := in.Headers.Get(oss.HeaderContentLength); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, oss.Argumentf(op, "invalid content length %q", cl)
		}
		b.size = n
	}

	s, ok := in.Body.(io.Seeker)
	if !ok {
		return b, nil
	}
	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		// Not actually seekable, e.g. a pipe behind *os.File.
		return b, nil
	}
	b.seeker, b.start = s, pos
	if b.size < 0 {
		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, oss.NewError(oss.KindRequest, op, fmt.Errorf("size body: %w", err))
		}
		if _, err := s.Seek(pos, io.SeekStart); err != nil {
			return nil, oss.NewError(oss.KindRequest, op, fmt.Errorf("seek body: %w", err))
		}
		b.size = end - pos
	}
	return b, nil
}

func (b *requestBody) rewindable() bool {
	return b.r == nil || b.seeker != nil
}

func (b *requestBody) rewind() error {
	if b.seeker == nil {
		return nil
	}
	if a, ok := b.r.(adjuster); ok && b.start == 0 {
		return a.Adjust(a.Offset(), a.Size())
	}
	_, err := b.seeker.Seek(b.start, io.SeekStart)
	return err
}

var errBodyStopped = errors.New("request body superseded by a later attempt")

// attemptBody is the request body of a single attempt. The transport may
// keep reading and closing it after Do returns, so the source is only
// rewound once stop has returned.
type attemptBody struct {
	mu      sync.Mutex
	r       io.Reader
	stopped bool
}

func (b *attemptBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return 0, errBodyStopped
	}
	return b.r.Read(p)
}

// Close leaves the caller's reader open.
func (b *attemptBody) Close() error {
	b.stop()
	return nil
}

// stop waits out an in-flight Read and fails every later one.
func (b *attemptBody) stop() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

// encodeParameters renders query parameters sorted by name; an empty value
// renders as a bare name, which is how sub-resources such as ?uploads are
// sent.
func encodeParameters(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(signer.EscapePath(k, false))
		if v := params[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(signer.EscapePath(v, false))
		}
	}
	return b.String()
}

func canceledError(op string, err error) *oss.Error {
	return oss.NewError(oss.KindCanceled, op, err)
}

// transportError classifies a failed round trip or body read.
func transportError(ctx context.Context, op string, err error) *oss.Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return canceledError(op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return oss.NewError(oss.KindTimeout, op, err)
	}
	return oss.NewError(oss.KindTransport, op, err)
}
