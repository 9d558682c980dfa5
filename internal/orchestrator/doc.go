// Package orchestrator drives a goal through the agent workflow.
//
// # Overview
//
// The orchestrator is a phase state machine:
//
//	Planning → PlanReview (optional) → Execution → Verification
//
// ending in Completed, Failed or Aborted. Every mutation goes through the
// state store, so the UI, the metrics collector and the loggers see each
// step on the event bus. The orchestrator itself keeps only the current goal
// id and its phase, both of which can be rebuilt from a snapshot.
//
// # Gates
//
// Two gates guard the workflow:
//   - Plan review: the supervisor scores the plan for up to MaxPlanRevisions
//     rounds, and each rejection regenerates the plan with the feedback.
//     When no round approves, PlanReviewFailure decides between failing the
//     run and proceeding.
//   - Output checks: with VerifyAllOutputs, deterministic pre-checks from
//     internal/decision run on every implementation and test report, and a
//     VIOLATION fails the fix cycle even when the agent reported success.
//
// # Execution
//
// Each goal iteration drains the pending tasks in plan order. A task runs
// through a fix cycle (implement, test, then fix and re-test up to
// MaxFixCycles). A task that still fails is retried, replanned into
// subtasks or abandoned according to the retry signal from the planner and
// the supervisor's diagnosis. After draining, failed tasks that nobody
// evaluated are force-replanned. A snapshot is written after every task
// transition and the time budget is checked after every task.
//
// # Failure handling
//
// Abort, or cancellation of the context, ends the run as Aborted and returns
// ErrAborted. Any other error ends it as Failed. In both cases a snapshot is
// written so that ResumeExecution can pick the run up again.
package orchestrator
