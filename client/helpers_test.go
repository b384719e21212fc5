package client_test

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/internal/osstest"
	"github.com/sagarc03/oss/metrics"
	"github.com/sagarc03/oss/retry"
)

const testBucket = "test-bucket"

var _ client.Observer = (*metrics.ClientMetrics)(nil)

// fastRetryer retries like the default policy without sleeping.
func fastRetryer(attempts int) retry.Retryer {
	return retry.NewStandard(
		retry.WithMaxAttempts(attempts),
		retry.WithBackoff(retry.NewFixed(time.Millisecond)),
	)
}

func newTestClient(t *testing.T, srv *osstest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	return newTestClientWithConfig(t, client.Config{
		Region:   osstest.DefaultRegion,
		Endpoint: srv.URL,
	}, opts...)
}

func newTestClientWithConfig(t *testing.T, cfg client.Config, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithCredentialsProvider(credentials.Static(osstest.DefaultAccessKey, osstest.DefaultSecretKey, "")),
		client.WithRetryer(fastRetryer(3)),
		client.WithLogger(slog.New(slog.DiscardHandler)),
		client.WithTracerProvider(noop.NewTracerProvider()),
	}
	c, err := client.New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

// payload returns n deterministic pseudo-random bytes.
func payload(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 42))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

// recordingObserver counts pipeline events.
type recordingObserver struct {
	mu        sync.Mutex
	attempts  map[string]int
	retries   map[string]int
	integrity map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		attempts:  make(map[string]int),
		retries:   make(map[string]int),
		integrity: make(map[string]int),
	}
}

func (o *recordingObserver) ObserveAttempt(op string, _ int, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts[op]++
}

func (o *recordingObserver) ObserveRetry(op string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries[op]++
}

func (o *recordingObserver) ObserveIntegrityFailure(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.integrity[op]++
}

func (o *recordingObserver) count(m map[string]int, op string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return m[op]
}

// roundTripFunc captures requests without a server.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{oss.HeaderOSSRequestID: []string{"req-1"}},
		Body:       io.NopCloser(http.NoBody),
		Request:    r,
	}
}

// onlyReader hides every method but Read.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
