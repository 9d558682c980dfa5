// Package telemetry wires OpenTelemetry tracing and metrics for conductor.
//
// Telemetry is off unless enabled in configuration or with OTEL_ENABLE=true,
// in which case spans and metrics are exported over OTLP (grpc by default,
// http/protobuf on request). Failures to build an exporter degrade to no-op
// providers; they never stop a run.
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx, span := tel.Tracer("conductor/orchestrator").Start(ctx, "phase.execution")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
