package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

// outcome is how a fix cycle ended.
type outcome struct {
	passed  bool
	blocked bool
	reason  string
	summary string
}

// execution runs goal iterations until no work is left, the iteration cap
// is hit or the time budget runs out.
func (o *Orchestrator) execution(ctx context.Context) (err error) {
	ctx, span := o.enter(ctx, state.PhaseExecution)
	defer func() { endSpan(span, err) }()

	iterations := max(o.cfg.MaxGoalIterations, 1)
	for iter := 1; iter <= iterations; iter++ {
		for {
			if err := o.checkAbort(ctx); err != nil {
				return err
			}
			task, ok := o.store.NextPendingTask(o.team.Planner.Name(), o.goalID)
			if !ok {
				break
			}
			if err := o.runTask(ctx, task); err != nil {
				return err
			}
			if o.timeExceeded() {
				o.logger.Warn(ctx, "time limit reached", zap.Duration("limit", o.cfg.TimeLimit))
				span.SetAttributes(attribute.Bool("time_exceeded", true))
				return nil
			}
		}

		pending := o.unevaluatedFailures()
		span.SetAttributes(attribute.Int("iterations", iter))
		if len(pending) == 0 {
			return nil
		}
		o.logger.Info(ctx, "replanning unevaluated failures", zap.Int("iteration", iter), zap.Int("tasks", len(pending)))
		for _, t := range pending {
			if err := o.checkAbort(ctx); err != nil {
				return err
			}
			if err := o.replan(ctx, t, t.Meta().FailureReason, false); err != nil {
				return err
			}
			o.snapshot(ctx)
		}
	}
	o.logger.Warn(ctx, "goal iterations exhausted", zap.Int("iterations", iterations))
	return nil
}

// unevaluatedFailures lists failed tasks that no retry decision has looked
// at and that are still under their attempt ceiling.
func (o *Orchestrator) unevaluatedFailures() []*state.Task {
	var out []*state.Task
	for _, t := range o.goalTasks() {
		m := t.Meta()
		if t.Status == state.TaskFailed && !m.ReplanEvaluated && t.Attempts < attemptCeiling(t) {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) runTask(ctx context.Context, task *state.Task) (err error) {
	planner := o.team.Planner.Name()
	ctx = logging.WithTaskID(ctx, task.ID)
	ctx, span := o.tracer.Start(ctx, "task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.description", task.Description),
	))
	defer func() { endSpan(span, err) }()

	task, err = o.store.UpdateTask(planner, task.ID, state.TaskUpdate{Status: state.TaskInProgress})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("task.attempts", task.Attempts))
	o.snapshot(ctx)

	out, err := o.fixCycle(ctx, task)
	if err != nil {
		if !recoverable(ctx, err) {
			return err
		}
		// Left unevaluated so the end-of-iteration sweep replans it.
		reason := err.Error()
		o.logger.Warn(ctx, "task failed on executor error", zap.Error(err))
		o.metrics.tasksFailed.Add(ctx, 1)
		if _, err := o.team.Planner.MarkTaskFailed(task.ID, reason); err != nil {
			return err
		}
		o.snapshot(ctx)
		return nil
	}

	switch {
	case out.passed:
		if err := o.team.Planner.MarkTaskCompleted(task.ID, out.summary); err != nil {
			return err
		}
		o.metrics.tasksCompleted.Add(ctx, 1)
		o.logger.Info(ctx, "task completed", zap.String("task", task.Description))

	case out.blocked:
		o.metrics.tasksFailed.Add(ctx, 1)
		if _, err := o.team.Planner.MarkTaskFailed(task.ID, out.reason); err != nil {
			return err
		}
		if err := o.replan(ctx, task, out.reason, true); err != nil {
			return err
		}

	default:
		o.metrics.tasksFailed.Add(ctx, 1)
		rd, err := o.team.Planner.MarkTaskFailed(task.ID, out.reason)
		if err != nil {
			return err
		}
		o.logger.Info(ctx, "task failed",
			zap.String("reason", out.reason),
			zap.Int("attempts", rd.Attempts),
			zap.Bool("needs_replan", rd.NeedsReplan),
		)
		if rd.NeedsReplan {
			if err := o.replan(ctx, task, out.reason, false); err != nil {
				return err
			}
			break
		}
		if err := o.retryLater(task); err != nil {
			return err
		}
	}
	o.snapshot(ctx)
	return nil
}

// fixCycle implements the task, then tests and fixes it until the tests
// pass, the coder reports it is blocked or MaxFixCycles fixes were spent.
func (o *Orchestrator) fixCycle(ctx context.Context, task *state.Task) (outcome, error) {
	impl, err := o.team.Coder.Implement(ctx, task)
	if err != nil {
		return outcome{}, err
	}
	for cycle := 0; ; cycle++ {
		if impl.Status == decision.StatusBlocked {
			return outcome{blocked: true, reason: "blocked: " + firstLine(impl.RawOutput)}, nil
		}

		var (
			report   decision.OutputReport
			failures []string
			reason   string
		)
		if violations := o.outputViolations(ctx, task, impl); len(violations) > 0 {
			failures = violations
			reason = "implementation rejected: " + strings.Join(violations, "; ")
		} else {
			report, failures, err = o.team.Tester.Test(ctx, task, impl)
			if err != nil {
				return outcome{}, err
			}
			violations := o.outputViolations(ctx, task, report)
			failures = append(failures, violations...)
			switch {
			case len(violations) > 0:
				reason = "test report rejected: " + strings.Join(violations, "; ")
			case report.Status == decision.StatusPassed || report.Status == decision.StatusComplete:
				return outcome{passed: true, summary: firstLine(report.RawOutput)}, nil
			default:
				reason = fmt.Sprintf("tests %s: %d of %d failed", orDefault(report.Status, "failed"), report.TestsFailed, report.TestsRun)
			}
		}

		if cycle >= o.cfg.MaxFixCycles {
			return outcome{reason: reason}, nil
		}
		if err := o.checkAbort(ctx); err != nil {
			return outcome{}, err
		}
		o.metrics.fixCycles.Add(ctx, 1)
		o.logger.Debug(ctx, "fixing", zap.Int("cycle", cycle+1), zap.String("reason", reason))
		impl, err = o.team.Coder.Fix(ctx, task, report, failures)
		if err != nil {
			return outcome{}, err
		}
	}
}

// retryLater returns a failed task to the queue when attempts remain and
// flags it so the sweep leaves it alone.
func (o *Orchestrator) retryLater(task *state.Task) error {
	planner := o.team.Planner.Name()
	if err := o.store.MarkReplanEvaluated(planner, task.ID); err != nil {
		return err
	}
	t, err := o.store.Task(planner, task.ID)
	if err != nil {
		return err
	}
	if t.Attempts >= attemptCeiling(t) {
		return nil
	}
	_, err = o.store.UpdateTask(planner, task.ID, state.TaskUpdate{Status: state.TaskPending})
	return err
}

// replan asks the supervisor for a diagnosis and acts on it: retry the task
// as is, give it up, or have the planner split it into subtasks. A blocked
// task is never retried unchanged.
func (o *Orchestrator) replan(ctx context.Context, task *state.Task, reason string, blocked bool) error {
	planner := o.team.Planner.Name()
	o.metrics.replans.Add(ctx, 1)

	diag, err := o.team.Supervisor.Diagnose(ctx, task, reason)
	if err != nil {
		if !recoverable(ctx, err) {
			return err
		}
		o.logger.Warn(ctx, "diagnosis unavailable, replanning", zap.Error(err))
		diag = decision.DiagnosisResult{Decision: decision.DiagnosisReplan}
	}

	switch diag.Decision {
	case decision.DiagnosisImpossible:
		o.logger.Info(ctx, "task abandoned", zap.String("task_id", task.ID), zap.String("why", diag.Reason))
		return o.team.Planner.AbandonTask(task.ID, joinReason(reason, diag.Reason))
	case decision.DiagnosisRetry:
		if blocked {
			break
		}
		t, err := o.store.Task(planner, task.ID)
		if err != nil {
			return err
		}
		if t.Attempts < attemptCeiling(t) {
			return o.retryLater(t)
		}
	}

	if depth := o.replanDepth(task); depth >= maxReplanDepth {
		o.logger.Warn(ctx, "replan depth exhausted", zap.String("task_id", task.ID), zap.Int("depth", depth))
		return o.team.Planner.AbandonTask(task.ID, joinReason(reason, "replan depth exhausted"))
	}
	subtasks, err := o.team.Planner.Replan(ctx, task, reason, diag)
	if err != nil {
		if !recoverable(ctx, err) {
			return err
		}
		o.logger.Warn(ctx, "replan failed, leaving task failed", zap.String("task_id", task.ID), zap.Error(err))
		return o.store.MarkReplanEvaluated(planner, task.ID)
	}
	o.logger.Info(ctx, "task replanned", zap.String("task_id", task.ID), zap.Int("subtasks", len(subtasks)))
	return nil
}

// replanDepth counts the replanned ancestors of task.
func (o *Orchestrator) replanDepth(task *state.Task) int {
	planner := o.team.Planner.Name()
	depth := 0
	for id := task.ParentTaskID; id != "" && depth < maxReplanDepth; depth++ {
		parent, err := o.store.Task(planner, id)
		if err != nil {
			break
		}
		id = parent.ParentTaskID
	}
	return depth
}

// attemptCeiling is the task's own MaxAttempts, or the complexity default
// when the task carries none.
func attemptCeiling(t *state.Task) int {
	if t.MaxAttempts > 0 {
		return t.MaxAttempts
	}
	return decision.MaxAttemptsFor(t.Meta().Complexity)
}

// recoverable reports whether err is an executor failure the run survives.
// Cancellation, permanent executor errors and store errors end the run.
func recoverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrAborted) {
		return false
	}
	var execErr *executor.Error
	return errors.As(err, &execErr) && !executor.IsPermanent(err)
}

func joinReason(reason, extra string) string {
	if extra == "" {
		return reason
	}
	if reason == "" {
		return extra
	}
	return reason + ": " + extra
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	const limit = 200
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
