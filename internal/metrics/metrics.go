// Package metrics holds the Prometheus instruments shared by the scheduler,
// the worker supervisor and the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Candidate evaluation outcomes.
const (
	OutcomeScreened  = "screened"
	OutcomeComposite = "composite"
	OutcomeConfirmed = "confirmed"
	OutcomePanic     = "panic"
)

// Metrics is safe for concurrent use. A nil *Metrics is valid and records
// nothing, which keeps call sites free of nil checks.
type Metrics struct {
	sessionsStarted   *prometheus.CounterVec
	sessionsFinished  *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	resultsEmitted    *prometheus.CounterVec
	candidates        *prometheus.CounterVec
	batchDuration     prometheus.Histogram
	workerProcesses   *prometheus.CounterVec
	workerLinesDropped prometheus.Counter
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfect_sessions_started_total",
				Help: "Stream sessions opened, by producer mode and framing",
			},
			[]string{"mode", "framing"},
		),
		sessionsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfect_sessions_finished_total",
				Help: "Stream sessions closed, by producer mode and terminal state",
			},
			[]string{"mode", "state"},
		),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "perfect_sessions_active",
			Help: "Stream sessions currently open",
		}),
		resultsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfect_results_emitted_total",
				Help: "Perfect numbers written to clients",
			},
			[]string{"mode"},
		),
		candidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfect_candidates_evaluated_total",
				Help: "Exponents evaluated by the in-process scheduler, by outcome",
			},
			[]string{"outcome"},
		),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perfect_batch_duration_seconds",
			Help:    "Wall time to evaluate one batch of exponents",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		}),
		workerProcesses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfect_worker_processes_total",
				Help: "External worker processes, by how they ended",
			},
			[]string{"outcome"},
		),
		workerLinesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "perfect_worker_lines_dropped_total",
			Help: "Worker output lines that were malformed or out of order",
		}),
	}
}

func (m *Metrics) SessionStarted(mode, framing string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(mode, framing).Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionFinished(mode, state string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(mode, state).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) ResultEmitted(mode string) {
	if m == nil {
		return
	}
	m.resultsEmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) CandidateEvaluated(outcome string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) WorkerExited(outcome string) {
	if m == nil {
		return
	}
	m.workerProcesses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WorkerLineDropped() {
	if m == nil {
		return
	}
	m.workerLinesDropped.Inc()
}
