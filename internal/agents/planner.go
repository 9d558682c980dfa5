package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

// ErrEmptyPlan is returned when a planning response contains no tasks.
var ErrEmptyPlan = errors.New("plan has no tasks")

// Planner turns goals into tasks and owns them in the store.
type Planner struct {
	base
}

// NewPlanner returns the planner agent.
func NewPlanner(d Deps) *Planner {
	return &Planner{base: newBase(d, state.RolePlanner)}
}

func (p *Planner) plannerState() state.PlannerState {
	if st := p.current().Planner; st != nil {
		return *st
	}
	return state.PlannerState{}
}

// CreatePlan opens a goal and fills it with planned tasks.
func (p *Planner) CreatePlan(ctx context.Context, goal string) (*state.Goal, error) {
	g, err := p.store.SetGoal(p.name, goal, nil)
	if err != nil {
		return nil, err
	}
	n, err := p.plan(ctx, g.ID, planPrompt(goal, "", p.store.SimilarFailures(goal, similarFailureHints)))
	if err != nil {
		return nil, err
	}

	st := p.plannerState()
	st.PlansCreated++
	st.CurrentGoalID = g.ID
	st.TasksPlanned += n
	if err := p.store.UpdateAgentState(p.name, state.StateUpdate{Planner: &st}); err != nil {
		return nil, err
	}
	p.logger.Info(ctx, "plan created", zap.String("goal_id", g.ID), zap.Int("tasks", n))
	return g, nil
}

// RevisePlan replaces the goal's tasks with a plan that addresses feedback.
func (p *Planner) RevisePlan(ctx context.Context, goalID, feedback string) error {
	g, err := p.store.Goal(p.name, goalID)
	if err != nil {
		return err
	}
	if _, err := p.store.RemoveTasksByGoalID(p.name, goalID, "plan revision"); err != nil {
		return err
	}
	n, err := p.plan(ctx, goalID, planPrompt(g.Description, feedback, p.store.SimilarFailures(g.Description, similarFailureHints)))
	if err != nil {
		return err
	}

	st := p.plannerState()
	st.PlansCreated++
	st.TasksPlanned += n
	return p.store.UpdateAgentState(p.name, state.StateUpdate{Planner: &st})
}

// plan asks for tasks and adds them to goalID.
func (p *Planner) plan(ctx context.Context, goalID, prompt string) (int, error) {
	res, err := p.ask(ctx, prompt)
	if err != nil {
		return 0, err
	}
	planned := parsePlan(res)
	if len(planned) == 0 {
		return 0, fmt.Errorf("%s: %w", p.name, ErrEmptyPlan)
	}
	for _, pt := range planned {
		if _, err := p.store.AddTask(p.name, p.taskSpec(ctx, pt, goalID)); err != nil {
			return 0, err
		}
	}
	p.remember("plan", fmt.Sprintf("%d tasks for goal %s", len(planned), goalID))
	return len(planned), nil
}

// taskSpec validates the planned metadata. Invalid complexity is dropped
// rather than failing the plan.
func (p *Planner) taskSpec(ctx context.Context, pt plannedTask, goalID string) state.TaskSpec {
	md := state.TaskMetadata{
		Complexity:           pt.Complexity,
		VerificationCriteria: cleanList(pt.VerificationCriteria),
	}
	if err := md.Validate(); err != nil {
		p.logger.Warn(ctx, "dropping invalid task metadata", zap.String("task", pt.Description), zap.Error(err))
		md.Complexity = ""
	}
	return state.TaskSpec{
		Description:  pt.Description,
		ParentGoalID: goalID,
		MaxAttempts:  decision.MaxAttemptsFor(md.Complexity),
		Metadata:     md.Map(),
	}
}

// Replan breaks a failed task into subtasks and blocks it on them. When the
// response has no usable subtasks a single retry subtask carrying the
// failure is added instead.
func (p *Planner) Replan(ctx context.Context, task *state.Task, reason string, diag decision.DiagnosisResult) ([]*state.Task, error) {
	res, err := p.ask(ctx, replanPrompt(task, reason, diag, p.store.SimilarFailures(reason, similarFailureHints)))
	if err != nil {
		return nil, err
	}
	planned := parsePlan(res)
	if len(planned) == 0 {
		planned = []plannedTask{{
			Description: fmt.Sprintf("%s (previous attempt failed: %s)", task.Description, reason),
			Complexity:  task.Meta().Complexity,
		}}
	}

	subtasks := make([]*state.Task, 0, len(planned))
	for _, pt := range planned {
		sub, err := p.store.AddSubtask(p.name, task.ID, p.taskSpec(ctx, pt, task.ParentGoalID))
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, sub)
	}
	if _, err := p.store.UpdateTask(p.name, task.ID, state.TaskUpdate{Status: state.TaskBlocked}); err != nil {
		return nil, err
	}

	st := p.plannerState()
	st.Replans++
	st.TasksPlanned += len(subtasks)
	if err := p.store.UpdateAgentState(p.name, state.StateUpdate{Planner: &st}); err != nil {
		return nil, err
	}
	p.remember("replan", fmt.Sprintf("%q split into %d subtasks: %s", task.Description, len(subtasks), reason))
	p.logger.Info(ctx, "task replanned", zap.String("task_id", task.ID), zap.Int("subtasks", len(subtasks)))
	return subtasks, nil
}

// MarkTaskFailed records a failure. NeedsReplan is set once the task has
// reached decision.MaxAttemptsBeforeReplan attempts, and such repeated
// failures are remembered as failure patterns.
func (p *Planner) MarkTaskFailed(taskID, reason string) (decision.RetryDecision, error) {
	t, err := p.store.UpdateTask(p.name, taskID, state.TaskUpdate{
		Status:   state.TaskFailed,
		Metadata: state.TaskMetadata{FailureReason: reason}.Map(),
	})
	if err != nil {
		return decision.RetryDecision{}, err
	}
	rd := decision.EvaluateFailure(t.Attempts)
	if rd.NeedsReplan {
		p.store.RecordFailurePattern(state.FailurePattern{
			TaskDescription: t.Description,
			FailurePattern:  reason,
			Metadata:        map[string]any{"attempts": t.Attempts},
		})
	}

	st := p.plannerState()
	st.FailedAttempts++
	if err := p.store.UpdateAgentState(p.name, state.StateUpdate{Planner: &st}); err != nil {
		return rd, err
	}
	return rd, nil
}

// MarkTaskCompleted completes a task. A task that had failed before leaves a
// resolved failure pattern behind.
func (p *Planner) MarkTaskCompleted(taskID, summary string) error {
	t, err := p.store.UpdateTask(p.name, taskID, state.TaskUpdate{
		Status:   state.TaskCompleted,
		Metadata: map[string]any{state.MetaFailureReason: nil},
	})
	if err != nil {
		return err
	}
	if t.Attempts > 1 {
		p.store.RecordFailurePattern(state.FailurePattern{
			TaskDescription: t.Description,
			FailurePattern:  "needed more than one attempt",
			Resolution:      firstLine(summary),
			Metadata:        map[string]any{"attempts": t.Attempts},
		})
	}
	return nil
}

// AbandonTask leaves a failed task for good.
func (p *Planner) AbandonTask(taskID, reason string) error {
	t, err := p.store.Task(p.name, taskID)
	if err != nil {
		return err
	}
	if err := p.store.MarkReplanEvaluated(p.name, taskID); err != nil {
		return err
	}
	p.store.RecordFailurePattern(state.FailurePattern{
		TaskDescription: t.Description,
		FailurePattern:  reason,
		Resolution:      "abandoned as impossible",
	})
	p.remember("abandoned", fmt.Sprintf("%q: %s", t.Description, reason))
	return nil
}
