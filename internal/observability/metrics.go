// File: internal/observability/metrics.go
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus collectors shared by the worker, the agent
// loop and the transport. A nil *Metrics is valid and records nothing, so
// components can be constructed without metrics in tests.
type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	escalations     prometheus.Counter
	tasksActive     prometheus.Gauge
	tasksTotal      *prometheus.CounterVec
	visionRequests  *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// NewMetrics registers every collector on reg under the given namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_commands_total",
			Help:      "Browser commands executed by the navigation worker.",
		}, []string{"kind", "outcome"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "browser_command_duration_seconds",
			Help:      "Wall time spent executing a browser command.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_decisions_total",
			Help:      "Decisions returned by the planner, by action kind.",
		}, []string{"kind"}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_escalations_total",
			Help:      "Times the agent handed control to a human after repeated malformed decisions.",
		}),
		tasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_tasks_active",
			Help:      "Tasks currently running.",
		}),
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tasks_total",
			Help:      "Tasks that ended, by how they ended.",
		}, []string{"outcome"}),
		visionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_requests_total",
			Help:      "Requests sent to the image-understanding service.",
		}, []string{"operation", "outcome"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients_connected",
			Help:      "Connected chat clients.",
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// ObserveCommand records one executed browser command.
func (m *Metrics) ObserveCommand(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(kind, outcome(ok)).Inc()
	m.commandDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveDecision records one planner decision.
func (m *Metrics) ObserveDecision(kind string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(kind).Inc()
}

// IncEscalations records one retry escalation.
func (m *Metrics) IncEscalations() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// TaskStarted marks a task as running.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksActive.Inc()
}

// TaskEnded marks a task as finished with the given outcome label.
func (m *Metrics) TaskEnded(result string) {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
	m.tasksTotal.WithLabelValues(result).Inc()
}

// ObserveVision records one vision service call.
func (m *Metrics) ObserveVision(operation string, ok bool) {
	if m == nil {
		return
	}
	m.visionRequests.WithLabelValues(operation, outcome(ok)).Inc()
}

// ClientConnected adjusts the connected chat client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}
