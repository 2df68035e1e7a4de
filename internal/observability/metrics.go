// Package observability provides run metrics and per-stage timing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

// Metric names.
const (
	MetricEventsUnifiedTotal  = "sitdown_events_unified_total"
	MetricSessionsTotal       = "sitdown_sessions_total"
	MetricStageDuration       = "sitdown_stage_duration_seconds"
	MetricRunsTotal           = "sitdown_runs_total"
	MetricHashCollisionsTotal = "sitdown_hash_collisions_total"
)

// Run status labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the Prometheus collectors for analysis runs.
// All operations are thread-safe.
type Metrics struct {
	eventsUnified  *prometheus.CounterVec
	sessions       prometheus.Counter
	stageDuration  *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	hashCollisions prometheus.Counter
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsUnified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsUnifiedTotal,
				Help: "Total number of events merged into the timeline by event type",
			},
			[]string{"event_type"},
		),
		sessions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricSessionsTotal,
				Help: "Total number of sitdown sessions produced",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Histogram of pipeline stage duration in seconds by stage",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of analysis runs by status",
			},
			[]string{"status"},
		),
		hashCollisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricHashCollisionsTotal,
				Help: "Total number of truncated user id hash collisions",
			},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsUnified,
		m.sessions,
		m.stageDuration,
		m.runs,
		m.hashCollisions,
	}
}

// AddEvents adds n unified events of eventType.
func (m *Metrics) AddEvents(eventType string, n int) {
	m.eventsUnified.WithLabelValues(eventType).Add(float64(n))
}

// AddSessions adds n produced sessions.
func (m *Metrics) AddSessions(n int) {
	m.sessions.Add(float64(n))
}

// ObserveStage records a stage duration sample.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncRuns counts a finished run with status StatusSuccess or StatusFailure.
func (m *Metrics) IncRuns(status string) {
	m.runs.WithLabelValues(status).Inc()
}

// AddHashCollisions adds n observed hash collisions.
func (m *Metrics) AddHashCollisions(n int) {
	if n > 0 {
		m.hashCollisions.Add(float64(n))
	}
}

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return sderrors.NewStorageError(sderrors.CodeUploadFailed, "write metrics textfile "+path, err)
	}
	return nil
}
