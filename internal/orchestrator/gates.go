package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

func (o *Orchestrator) planning(ctx context.Context, goal string) (err error) {
	ctx, span := o.enter(ctx, state.PhasePlanning)
	defer func() { endSpan(span, err) }()

	g, err := o.team.Planner.CreatePlan(ctx, goal)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	o.goalID = g.ID
	span.SetAttributes(attribute.String("goal.id", g.ID), attribute.Int("tasks", len(o.goalTasks())))
	o.snapshot(ctx)
	return nil
}

// planReview asks the supervisor to approve the plan, regenerating it with
// the feedback after each rejection. The last round's rejection is not
// followed by a revision.
func (o *Orchestrator) planReview(ctx context.Context) (err error) {
	ctx, span := o.enter(ctx, state.PhasePlanReview)
	defer func() { endSpan(span, err) }()

	rounds := max(o.cfg.MaxPlanRevisions, 1)
	var last decision.Verdict
	for round := 1; round <= rounds; round++ {
		if err := o.checkAbort(ctx); err != nil {
			return err
		}
		last, err = o.team.Supervisor.ReviewPlan(ctx, o.currentGoal(), o.goalTasks())
		if err != nil {
			return fmt.Errorf("plan review: %w", err)
		}
		o.logger.Info(ctx, "plan reviewed",
			zap.Int("round", round),
			zap.Int("score", last.Score),
			zap.Bool("approved", last.Approved),
		)
		if last.Approved {
			span.SetAttributes(attribute.Int("rounds", round), attribute.Bool("approved", true))
			return nil
		}
		if round == rounds {
			break
		}
		if err := o.team.Planner.RevisePlan(ctx, o.goalID, reviewFeedback(last)); err != nil {
			return fmt.Errorf("plan revision: %w", err)
		}
		o.snapshot(ctx)
	}

	span.SetAttributes(attribute.Int("rounds", rounds), attribute.Bool("approved", false))
	action := o.cfg.PlanReviewFailure
	if action == config.PlanReviewLowerThreshold && decision.IsHardReject(last.Score) {
		// The lowered bar is the reject threshold; below it the plan stops the run.
		action = config.PlanReviewAbort
	}
	switch action {
	case config.PlanReviewSkip, config.PlanReviewLowerThreshold:
		o.logger.Warn(ctx, "plan not approved, continuing",
			zap.String("action", string(o.cfg.PlanReviewFailure)),
			zap.Int("score", last.Score),
		)
		return nil
	default:
		return fmt.Errorf("%w after %d rounds (score %d)", ErrPlanRejected, rounds, last.Score)
	}
}

func reviewFeedback(v decision.Verdict) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(v.Feedback))
	for _, issue := range v.Issues {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(issue)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "The plan scored %d and was not approved.", v.Score)
	}
	return b.String()
}

// outputViolations runs the deterministic pre-checks on a report when
// VerifyAllOutputs is set.
func (o *Orchestrator) outputViolations(ctx context.Context, task *state.Task, report decision.OutputReport) []string {
	if !o.cfg.VerifyAllOutputs {
		return nil
	}
	findings := decision.CheckOutput(report)
	var out []string
	for _, f := range findings {
		if f.Severity != decision.SeverityViolation {
			o.logger.Debug(ctx, "output warning", zap.String("task_id", task.ID), zap.String("finding", f.String()))
			continue
		}
		out = append(out, f.String())
	}
	return out
}

// verification asks the supervisor whether the goal was achieved and closes
// the workflow with that answer.
func (o *Orchestrator) verification(ctx context.Context) (res *Result, err error) {
	ctx, span := o.enter(ctx, state.PhaseVerification)
	defer func() { endSpan(span, err) }()

	if err := o.checkAbort(ctx); err != nil {
		return nil, err
	}
	goal := o.currentGoal()
	v, err := o.team.Supervisor.VerifyGoal(ctx, goal, o.goalTasks())
	if err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}
	span.SetAttributes(attribute.Int("score", v.Score), attribute.Bool("approved", v.Approved))

	goalStatus, phase, status := state.GoalFailed, state.PhaseFailed, state.WorkflowFailed
	if v.Approved {
		goalStatus, phase, status = state.GoalCompleted, state.PhaseCompleted, state.WorkflowCompleted
	}
	if _, err := o.store.UpdateGoal(o.team.Planner.Name(), goal.ID, state.GoalUpdate{Status: goalStatus}); err != nil {
		o.logger.Debug(ctx, "goal not recorded", zap.String("goal_id", goal.ID), zap.Error(err))
	}

	o.setPhase(ctx, phase)
	res = o.closeWorkflow(ctx, status, state.WorkflowResult{
		Success: v.Approved,
		Summary: verdictSummary(v),
		Score:   v.Score,
	})
	o.snapshot(ctx)
	o.logger.Info(ctx, "workflow finished",
		zap.Bool("success", res.Success),
		zap.Int("score", res.Score),
		zap.Int("completed", res.TasksCompleted),
		zap.Int("failed", res.TasksFailed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func verdictSummary(v decision.Verdict) string {
	if s := strings.TrimSpace(v.Feedback); s != "" {
		if i := strings.IndexByte(s, '\n'); i != -1 {
			s = s[:i]
		}
		return s
	}
	if len(v.Issues) > 0 {
		return strings.Join(v.Issues, "; ")
	}
	return fmt.Sprintf("score %d, %s", v.Score, v.Recommendation)
}
