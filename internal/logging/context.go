// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := WorkflowIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("workflow.id", id))
	}
	if phase := PhaseFromContext(ctx); phase != "" {
		fields = append(fields, zap.String("phase", phase))
	}
	if agent := AgentFromContext(ctx); agent != "" {
		fields = append(fields, zap.String("agent", agent))
	}
	if task := TaskIDFromContext(ctx); task != "" {
		fields = append(fields, zap.String("task.id", task))
	}

	return fields
}

// Context key types
type workflowCtxKey struct{}
type phaseCtxKey struct{}
type agentCtxKey struct{}
type taskCtxKey struct{}
type loggerCtxKey struct{}

func stringValue(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithWorkflowID adds the workflow id to context.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowCtxKey{}, id)
}

// WorkflowIDFromContext extracts the workflow id from context.
func WorkflowIDFromContext(ctx context.Context) string {
	return stringValue(ctx, workflowCtxKey{})
}

// WithPhase adds the orchestrator phase to context.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseCtxKey{}, phase)
}

// PhaseFromContext extracts the orchestrator phase from context.
func PhaseFromContext(ctx context.Context) string {
	return stringValue(ctx, phaseCtxKey{})
}

// WithAgent adds the acting agent name to context.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentCtxKey{}, agent)
}

// AgentFromContext extracts the acting agent name from context.
func AgentFromContext(ctx context.Context) string {
	return stringValue(ctx, agentCtxKey{})
}

// WithTaskID adds the current task id to context.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, id)
}

// TaskIDFromContext extracts the current task id from context.
func TaskIDFromContext(ctx context.Context) string {
	return stringValue(ctx, taskCtxKey{})
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
