// Package metrics holds the Prometheus collectors for ingestion, search and export.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leakscan"

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	uploads        *prometheus.CounterVec
	recordsIndexed prometheus.Counter
	recordsFailed  prometheus.Counter
	batchRetries   prometheus.Counter
	batchDuration  prometheus.Histogram
	searches       prometheus.Counter
	exports        *prometheus.CounterVec
}

// New registers all collectors, plus Go runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Dump uploads by outcome.",
		}, []string{"result"}),
		recordsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_indexed_total",
			Help:      "Records accepted by the index.",
		}),
		recordsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Records rejected by the index.",
		}),
		batchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Bulk requests retried after a transport failure.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Bulk request latency, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Domain searches served.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports by format.",
		}, []string{"format"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.uploads, m.recordsIndexed, m.recordsFailed, m.batchRetries,
		m.batchDuration, m.searches, m.exports,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
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

// Upload counts one upload with result "complete", "partial", "duplicate", "rejected" or "failed".
func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

// Batch records one committed bulk request.
func (m *Metrics) Batch(indexed, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.recordsIndexed.Add(float64(indexed))
	m.recordsFailed.Add(float64(failed))
	m.batchDuration.Observe(seconds)
}

// Retry counts one retried bulk request.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.batchRetries.Inc()
}

// Search counts one served search.
func (m *Metrics) Search() {
	if m == nil {
		return
	}
	m.searches.Inc()
}

// Export counts one export in the given format.
func (m *Metrics) Export(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}
