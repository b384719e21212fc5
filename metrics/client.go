// Package metrics exposes client pipeline instrumentation as Prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagarc03/oss"
)

// ClientMetrics holds Prometheus collectors for the request pipeline. It
// implements client.Observer.
type ClientMetrics struct {
	attempts      *prometheus.CounterVec   // labels: op, result
	errors        *prometheus.CounterVec   // labels: op, kind
	retries       *prometheus.CounterVec   // labels: op
	retryDelay    *prometheus.HistogramVec // labels: op
	latency       *prometheus.HistogramVec // labels: op
	integrityFail *prometheus.CounterVec   // labels: op
}

// NewClientMetrics registers client metrics on reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "attempts_total",
		Help:      "Total number of request attempts by result.",
	}, []string{"op", "result"}) // result = "ok" | "error"
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "attempt_errors_total",
		Help:      "Failed request attempts by error kind.",
	}, []string{"op", "kind"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "retries_total",
		Help:      "Number of attempts that were retried.",
	}, []string{"op"})
	retryDelay := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "retry_delay_seconds",
		Help:      "Backoff slept before a retry, in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"op"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "attempt_duration_seconds",
		Help:      "Histogram of request attempt durations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	integrityFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oss",
		Subsystem: "client",
		Name:      "integrity_failures_total",
		Help:      "Number of CRC-64 mismatches detected on transfers.",
	}, []string{"op"})

	_ = reg.Register(attempts)
	_ = reg.Register(errs)
	_ = reg.Register(retries)
	_ = reg.Register(retryDelay)
	_ = reg.Register(latency)
	_ = reg.Register(integrityFail)

	return &ClientMetrics{
		attempts:      attempts,
		errors:        errs,
		retries:       retries,
		retryDelay:    retryDelay,
		latency:       latency,
		integrityFail: integrityFail,
	}
}

// ObserveAttempt records one transmit attempt.
func (m *ClientMetrics) ObserveAttempt(op string, _ int, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
		m.errors.WithLabelValues(op, oss.KindOf(err).String()).Inc()
	}
	m.attempts.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRetry records a retry and the delay before it.
func (m *ClientMetrics) ObserveRetry(op string, _ int, delay time.Duration) {
	m.retries.WithLabelValues(op).Inc()
	m.retryDelay.WithLabelValues(op).Observe(delay.Seconds())
}

// ObserveIntegrityFailure records a CRC-64 mismatch.
func (m *ClientMetrics) ObserveIntegrityFailure(op string) {
	m.integrityFail.WithLabelValues(op).Inc()
}
