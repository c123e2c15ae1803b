package coordinator

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes recorded by the worker.
const (
	OutcomeIndexed = "indexed"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors for the index pipeline.
type Metrics struct {
	QueueDepth    prometheus.Gauge
	JobsTotal     *prometheus.CounterVec
	IndexDuration prometheus.Histogram
	QueriesTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockerindex_queue_depth",
				Help: "Number of index jobs waiting for the worker.",
			},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockerindex_index_jobs_total",
				Help: "Index jobs processed by outcome (indexed, empty, error).",
			},
			[]string{"outcome"},
		),
		IndexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lockerindex_index_duration_seconds",
				Help:    "Engine write latency reported for indexed documents.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockerindex_queries_total",
				Help: "Queries by scope (type, all) and outcome (ok, error).",
			},
			[]string{"scope", "outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.QueueDepth, m.JobsTotal, m.IndexDuration, m.QueriesTotal)
	}
	return m
}

func (m *Metrics) observeJob(d time.Duration, err error) {
	switch {
	case err != nil:
		m.JobsTotal.WithLabelValues(OutcomeError).Inc()
	case d == 0:
		m.JobsTotal.WithLabelValues(OutcomeEmpty).Inc()
	default:
		m.JobsTotal.WithLabelValues(OutcomeIndexed).Inc()
		m.IndexDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) observeQuery(scope string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.QueriesTotal.WithLabelValues(scope, outcome).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
