package monitor

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

// Metric names exported on /metrics.
const (
	MetricEvents       = "conductor_events_total"
	MetricPhase        = "conductor_phase"
	MetricTasks        = "conductor_tasks"
	MetricInvocations  = "conductor_invocations_total"
	MetricCost         = "conductor_cost_usd_total"
	MetricInvokeTime   = "conductor_invocation_duration_seconds"
	MetricWorkflowRuns = "conductor_workflows_total"
)

var phases = []state.Phase{
	state.PhasePlanning,
	state.PhasePlanReview,
	state.PhaseExecution,
	state.PhaseVerification,
	state.PhaseCompleted,
	state.PhaseFailed,
	state.PhaseAborted,
}

var taskStatuses = []state.TaskStatus{
	state.TaskPending,
	state.TaskInProgress,
	state.TaskBlocked,
	state.TaskCompleted,
	state.TaskFailed,
}

// Metrics turns store events into Prometheus series. Observe is a
// state.Handler; the registry may be scraped from another goroutine.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	phase       *prometheus.GaugeVec
	tasks       *prometheus.GaugeVec
	invocations *prometheus.CounterVec
	cost        *prometheus.CounterVec
	invokeTime  *prometheus.HistogramVec
	workflows   *prometheus.CounterVec

	mu       sync.Mutex
	statuses map[string]state.TaskStatus
}

// NewMetrics registers the conductor series on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEvents,
				Help: "Store events by kind and source",
			},
			[]string{"kind", "source"},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricPhase,
				Help: "1 for the current orchestration phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricTasks,
				Help: "Tasks by status",
			},
			[]string{"status"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricInvocations,
				Help: "Executor attempts by agent and status",
			},
			[]string{"agent", "status"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCost,
				Help: "Executor cost in USD by agent",
			},
			[]string{"agent"},
		),
		invokeTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricInvokeTime,
				Help:    "Executor attempt duration",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
			},
			[]string{"agent"},
		),
		workflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWorkflowRuns,
				Help: "Finished workflows by status",
			},
			[]string{"status"},
		),
		statuses: make(map[string]state.TaskStatus),
	}
	m.registry.MustRegister(m.events, m.phase, m.tasks, m.invocations, m.cost, m.invokeTime, m.workflows)
	for _, p := range phases {
		m.phase.WithLabelValues(string(p)).Set(0)
	}
	for _, s := range taskStatuses {
		m.tasks.WithLabelValues(string(s)).Set(0)
	}
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one event. Pass it to Store.SubscribeAll.
func (m *Metrics) Observe(e state.Event) {
	m.events.WithLabelValues(string(e.Kind), e.Source).Inc()

	switch p := e.Payload.(type) {
	case state.PhasePayload:
		for _, ph := range phases {
			v := 0.0
			if ph == p.To {
				v = 1
			}
			m.phase.WithLabelValues(string(ph)).Set(v)
		}
	case state.TaskPayload:
		m.setTask(p.Task.ID, p.Task.Status)
	case state.TasksRemovedPayload:
		for _, id := range p.TaskIDs {
			m.setTask(id, "")
		}
	case state.InvocationPayload:
		inv := p.Invocation
		m.invocations.WithLabelValues(inv.AgentName, string(inv.Status)).Inc()
		if inv.CostUSD > 0 {
			m.cost.WithLabelValues(inv.AgentName).Add(inv.CostUSD)
		}
		m.invokeTime.WithLabelValues(inv.AgentName).Observe(float64(inv.DurationMS) / 1000)
	case state.WorkflowPayload:
		if e.Kind == state.EventWorkflowCompleted {
			m.workflows.WithLabelValues(string(p.Workflow.Status)).Inc()
		}
	}
}

// setTask moves a task between status gauges. An empty status removes it.
func (m *Metrics) setTask(id string, status state.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.statuses[id]; ok {
		if prev == status {
			return
		}
		m.tasks.WithLabelValues(string(prev)).Dec()
	}
	if status == "" {
		delete(m.statuses, id)
		return
	}
	m.statuses[id] = status
	m.tasks.WithLabelValues(string(status)).Inc()
}
