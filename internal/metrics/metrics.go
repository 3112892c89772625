package metrics

import (
	"time"

	"kycflow/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunsInFlight prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_workflow_runs_total",
			Help: "Total verification workflow runs by final status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycflow_workflow_run_duration_seconds",
			Help:    "End-to-end duration of verification workflow runs",
			Buckets: prometheus.DefBuckets,
		}),
		RunsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kycflow_workflow_runs_in_flight",
			Help: "Verification workflow runs currently executing",
		}),
	}
}

// RunStarted marks a workflow run as in flight.
func (m *Metrics) RunStarted() {
	m.RunsInFlight.Inc()
}

// RunFinished records a run's final status and duration.
func (m *Metrics) RunFinished(status domain.WorkflowStatus, duration time.Duration) {
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(duration.Seconds())
}
