package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

const instrumentationName = "github.com/fyrsmithlabs/conductor/internal/orchestrator"

// Counter names.
const (
	MetricPhaseTransitions = "conductor.phase.transitions"
	MetricTasksCompleted   = "conductor.tasks.completed"
	MetricTasksFailed      = "conductor.tasks.failed"
	MetricReplans          = "conductor.replans"
	MetricFixCycles        = "conductor.fix_cycles"
)

type instruments struct {
	phases         metric.Int64Counter
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	replans        metric.Int64Counter
	fixCycles      metric.Int64Counter
}

func newInstruments(m metric.Meter) *instruments {
	return &instruments{
		phases:         counter(m, MetricPhaseTransitions, "Phase transitions"),
		tasksCompleted: counter(m, MetricTasksCompleted, "Tasks completed"),
		tasksFailed:    counter(m, MetricTasksFailed, "Task failures"),
		replans:        counter(m, MetricReplans, "Failed tasks sent to diagnosis and replanning"),
		fixCycles:      counter(m, MetricFixCycles, "Fix attempts after failing tests"),
	}
}

// counter falls back to a no-op instrument when the meter rejects one.
func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}

func (i *instruments) phaseChanged(ctx context.Context, p state.Phase) {
	i.phases.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(p))))
}
