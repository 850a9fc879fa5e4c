// Package metrics exposes Prometheus collectors for analysis passes on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imvqa"

// Metrics holds every collector the application records to
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	DegenerateControl *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	UploadedRecords   prometheus.Counter
	SavedRecords      prometheus.Counter
}

// New registers the collectors, plus the Go and process collectors, on a
// fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Analysis operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of analysis operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DegenerateControl: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_control_total",
			Help:      "Variation requests whose control median was zero or undefined.",
		}, []string{"feature"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Analysis sessions currently held in memory.",
		}),
		UploadedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_field_records_total",
			Help:      "QA field records parsed from uploads.",
		}),
		SavedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_field_records_total",
			Help:      "Field records written to the analysis store.",
		}),
	}
	reg.MustRegister(
		m.Operations,
		m.OperationDuration,
		m.DegenerateControl,
		m.ActiveSessions,
		m.UploadedRecords,
		m.SavedRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one finished operation. A nil error counts as "ok".
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
