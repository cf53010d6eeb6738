// Package metrics exposes Prometheus metrics for the store and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moviedb"

// Metrics holds the application collectors. It implements jsondb.Observer.
type Metrics struct {
	reg *prometheus.Registry

	commits       *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	pushes        *prometheus.CounterVec
}

var _ jsondb.Observer = (*Metrics)(nil)

// New returns collectors registered on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Documents successfully replaced.",
		}, []string{"collection"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_failures_total",
			Help:      "Failed write attempts by stage.",
		}, []string{"collection", "stage"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "recoveries_total",
			Help:      "Reads that found a corrupt primary document.",
		}, []string{"collection", "source"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the write lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		}, []string{"collection"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"method"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Web push notifications sent by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		m.commits,
		m.writeFailures,
		m.recoveries,
		m.lockWait,
		m.httpRequests,
		m.httpDuration,
		m.pushes,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// LockWaited implements jsondb.Observer.
func (m *Metrics) LockWaited(collection string, d time.Duration) {
	m.lockWait.WithLabelValues(collection).Observe(d.Seconds())
}

// Committed implements jsondb.Observer.
func (m *Metrics) Committed(collection string) {
	m.commits.WithLabelValues(collection).Inc()
}

// WriteFailed implements jsondb.Observer.
func (m *Metrics) WriteFailed(collection string, stage jsondb.Stage) {
	m.writeFailures.WithLabelValues(collection, string(stage)).Inc()
}

// Recovered implements jsondb.Observer.
func (m *Metrics) Recovered(collection string, src jsondb.Source) {
	m.recoveries.WithLabelValues(collection, src.String()).Inc()
}

// ObserveHTTP records a completed request.
func (m *Metrics) ObserveHTTP(method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// PushSent records the outcome of a web push: "ok", "gone" or "error".
func (m *Metrics) PushSent(result string) {
	m.pushes.WithLabelValues(result).Inc()
}
