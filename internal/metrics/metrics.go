// Package metrics holds the Prometheus collectors of the node. Every method
// is safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nftmarket"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	TxTotal          *prometheus.CounterVec
	TxDuration       *prometheus.HistogramVec
	SettlementVolume *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	EventsIndexed    prometheus.Counter
	Snapshots        *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_total",
				Help:      "Submitted transactions by method and outcome.",
			},
			[]string{"method", "status"},
		),
		TxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tx_duration_seconds",
				Help:      "Transaction execution latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		SettlementVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_volume_ether",
				Help:      "Settled order value in ether by settlement kind.",
			},
			[]string{"kind"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Committed events delivered to sinks.",
			},
			[]string{"sink", "status"},
		),
		EventsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_indexed_total",
				Help:      "Events projected into the read model.",
			},
		),
		Snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "State snapshot attempts by outcome.",
			},
			[]string{"status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TxTotal, m.TxDuration, m.SettlementVolume, m.EventsPublished,
		m.EventsIndexed, m.Snapshots, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Registry exposes the registry so other packages can add collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTx records one transaction.
func (m *Metrics) ObserveTx(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TxTotal.WithLabelValues(method, status(err)).Inc()
	m.TxDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// AddSettlement adds settled value in ether.
func (m *Metrics) AddSettlement(kind string, ether float64) {
	if m == nil || ether <= 0 {
		return
	}
	m.SettlementVolume.WithLabelValues(kind).Add(ether)
}

// EventPublished records one sink delivery.
func (m *Metrics) EventPublished(sink string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(sink, status(err)).Inc()
}

// EventIndexed records one projected event.
func (m *Metrics) EventIndexed() {
	if m == nil {
		return
	}
	m.EventsIndexed.Inc()
}

// SnapshotTaken records one snapshot attempt.
func (m *Metrics) SnapshotTaken(err error) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(status(err)).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, path, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, code).Inc()
	m.HTTPDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
