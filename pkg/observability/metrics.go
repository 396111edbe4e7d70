package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one arepl process.
type Metrics struct {
	evaluations         *prometheus.CounterVec
	evaluationDuration  prometheus.Histogram
	restarts            *prometheus.CounterVec
	interrupted         prometheus.Counter
	communicationErrors prometheus.Counter
	renders             *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arepl_evaluations_total",
				Help: "Completed evaluations by outcome",
			},
			[]string{"outcome"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arepl_evaluation_duration_seconds",
				Help:    "Interpreter-reported execution time of user code",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arepl_interpreter_restarts_total",
				Help: "Interpreter restarts by reason",
			},
			[]string{"reason"},
		),
		interrupted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arepl_interrupted_runs_total",
				Help: "Requests sent while a previous one was still evaluating",
			},
		),
		communicationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arepl_communication_errors_total",
				Help: "Malformed lines received from the interpreter",
			},
		),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arepl_renders_total",
				Help: "Documents delivered to the render sink",
			},
			[]string{"mode"},
		),
	}
	reg.MustRegister(
		m.evaluations,
		m.evaluationDuration,
		m.restarts,
		m.interrupted,
		m.communicationErrors,
		m.renders,
	)
	return m
}

// Evaluated records a completed run.
func (m *Metrics) Evaluated(elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
}

// Restarted records an interpreter restart ("crash", "config", "restart_mode").
func (m *Metrics) Restarted(reason string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(reason).Inc()
}

// Interrupted records a superseded request.
func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.interrupted.Inc()
}

// CommunicationError records a malformed interpreter line.
func (m *Metrics) CommunicationError() {
	if m == nil {
		return
	}
	m.communicationErrors.Inc()
}

// Rendered records a delivered document; forced renders bypass the throttle.
func (m *Metrics) Rendered(forced bool) {
	if m == nil {
		return
	}
	mode := "throttled"
	if forced {
		mode = "forced"
	}
	m.renders.WithLabelValues(mode).Inc()
}
