// Package logging provides structured logging for conductor runs.
//
// # Overview
//
// Logging wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output to stderr, a log file, and optionally OpenTelemetry
//   - Automatic context field injection (trace_id, workflow, agent, task, phase)
//   - Secret redaction at the encoder
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithWorkflowID(ctx, wf.ID)
//	ctx = logging.WithAgent(ctx, "coder")
//	logger.Info(ctx, "task started", zap.String("task", id))
//
// Output:
//
//	{"ts":"2025-11-24T10:15:30Z","level":"info","msg":"task started",
//	 "workflow.id":"wf-1","agent":"coder","task":"..."}
//
// When the terminal dashboard owns the screen, point Output.File at a log file
// and turn Output.Stderr off.
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
