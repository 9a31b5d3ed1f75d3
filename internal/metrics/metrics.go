// Package metrics provides Prometheus instrumentation for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Eligibility outcomes.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeComputed = "computed"
	OutcomeDegraded = "degraded"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Eligibility metrics
	EligibilityChecks  *prometheus.CounterVec
	CheckerInvocations *prometheus.CounterVec
	CacheWriteErrors   prometheus.Counter

	// Points metrics
	PointsRefreshes   *prometheus.CounterVec
	SnapshotConflicts prometheus.Counter

	// Upstream metrics
	UpstreamLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// Scheduler metrics
	ScheduledRefreshes *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "airdrop"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EligibilityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "checks_total",
			Help:      "Per-campaign eligibility evaluations by outcome",
		}, []string{"outcome"}),
		CheckerInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "checker_invocations_total",
			Help:      "Checker strategy invocations by check method",
		}, []string{"method"}),
		CacheWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "cache_write_errors_total",
			Help:      "Eligibility cache writes that failed and were swallowed",
		}),

		PointsRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "refreshes_total",
			Help:      "Per-program points refreshes by status",
		}, []string{"program", "status"}),
		SnapshotConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "points",
			Name:      "snapshot_conflicts_total",
			Help:      "Snapshot inserts rejected by the sequence check",
		}),

		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Outbound request latency by host and status class",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host", "status"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),

		ScheduledRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "wallet_refreshes_total",
			Help:      "Scheduled wallet refreshes by result",
		}, []string{"result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEligibility records a per-campaign evaluation outcome.
func (m *Metrics) RecordEligibility(outcome string) {
	if m == nil {
		return
	}
	m.EligibilityChecks.WithLabelValues(outcome).Inc()
}

// RecordCheckerInvocation records a checker strategy call.
func (m *Metrics) RecordCheckerInvocation(method string) {
	if m == nil {
		return
	}
	m.CheckerInvocations.WithLabelValues(method).Inc()
}

// RecordCacheWriteError records a swallowed cache write failure.
func (m *Metrics) RecordCacheWriteError() {
	if m == nil {
		return
	}
	m.CacheWriteErrors.Inc()
}

// RecordRefresh records a per-program refresh status.
func (m *Metrics) RecordRefresh(programID, status string) {
	if m == nil {
		return
	}
	m.PointsRefreshes.WithLabelValues(programID, status).Inc()
}

// RecordSnapshotConflict records an optimistic concurrency conflict.
func (m *Metrics) RecordSnapshotConflict() {
	if m == nil {
		return
	}
	m.SnapshotConflicts.Inc()
}

// ObserveUpstream records the latency of one outbound attempt. status is zero
// for transport failures.
func (m *Metrics) ObserveUpstream(host string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(host, statusClass(status)).Observe(d.Seconds())
}

// RecordHTTPRequest records an inbound request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordScheduledRefresh records one scheduled wallet refresh.
func (m *Metrics) RecordScheduledRefresh(result string) {
	if m == nil {
		return
	}
	m.ScheduledRefreshes.WithLabelValues(result).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
