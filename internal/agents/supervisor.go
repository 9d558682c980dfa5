package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

// Supervisor judges plans and results and diagnoses failed tasks.
type Supervisor struct {
	base
	threshold int
}

// NewSupervisor returns the supervisor agent. Its approval threshold comes
// from configuration and defaults to decision.ApproveThreshold.
func NewSupervisor(d Deps) *Supervisor {
	s := &Supervisor{base: newBase(d, state.RoleSupervisor), threshold: decision.ApproveThreshold}
	if d.Config != nil && d.Config.Supervisor.ApproveThreshold > 0 {
		s.threshold = d.Config.Supervisor.ApproveThreshold
	}
	return s
}

// Threshold returns the score a verdict needs for approval.
func (s *Supervisor) Threshold() int {
	return s.threshold
}

// ReviewPlan scores a plan before execution. Deterministic violations
// reject the plan whatever the score.
func (s *Supervisor) ReviewPlan(ctx context.Context, goal *state.Goal, tasks []*state.Task) (decision.Verdict, error) {
	findings := decision.CheckPlan(tasks)
	res, err := s.ask(ctx, reviewPrompt(goal.Description, tasks, findings))
	if err != nil {
		return decision.Verdict{}, err
	}
	v := s.gate(parseVerdict(res, s.threshold), findings)
	if err := s.record(ctx, "plan_review", v); err != nil {
		return v, err
	}
	return v, nil
}

// VerifyGoal decides whether the goal was achieved.
func (s *Supervisor) VerifyGoal(ctx context.Context, goal *state.Goal, tasks []*state.Task) (decision.Verdict, error) {
	findings := decision.CheckGoalCompletion(tasks)
	res, err := s.ask(ctx, verifyPrompt(goal.Description, tasks, s.agentStats(), findings))
	if err != nil {
		return decision.Verdict{}, err
	}
	v := s.gate(parseVerdict(res, s.threshold), findings)
	if err := s.record(ctx, "verification", v); err != nil {
		return v, err
	}
	return v, nil
}

// Diagnose decides what to do with a failed task.
func (s *Supervisor) Diagnose(ctx context.Context, task *state.Task, reason string) (decision.DiagnosisResult, error) {
	res, err := s.ask(ctx, diagnosePrompt(task, reason, s.store.SimilarFailures(reason, similarFailureHints)))
	if err != nil {
		return decision.DiagnosisResult{}, err
	}
	d := parseDiagnosis(res)

	st := s.supervisorState()
	st.LastDiagnosis = string(d.Decision)
	if err := s.store.UpdateAgentState(s.name, state.StateUpdate{Supervisor: &st}); err != nil {
		return d, err
	}
	s.remember("diagnosis", fmt.Sprintf("%s for %q: %s", d.Decision, task.Description, firstLine(d.Reason)))
	s.logger.Info(ctx, "task diagnosed",
		zap.String("task_id", task.ID),
		zap.String("decision", string(d.Decision)),
		zap.Bool("fallback", d.Fallback),
	)
	return d, nil
}

// gate folds blocking findings into v.
func (s *Supervisor) gate(v decision.Verdict, findings []decision.Finding) decision.Verdict {
	violations := decision.Violations(findings)
	if len(violations) == 0 {
		return v
	}
	v.Approved = false
	for _, f := range violations {
		v.Issues = append(v.Issues, f.String())
	}
	v.Escalation = decision.DetermineEscalation(v.Score, v.Issues)
	return v
}

func (s *Supervisor) record(ctx context.Context, kind string, v decision.Verdict) error {
	st := s.supervisorState()
	st.Reviews++
	if v.Approved {
		st.Approvals++
	} else {
		st.Rejections++
	}
	st.LastScore = v.Score
	st.Escalation = string(v.Escalation)
	if err := s.store.UpdateAgentState(s.name, state.StateUpdate{Supervisor: &st}); err != nil {
		return err
	}
	s.remember(kind, fmt.Sprintf("score %d, approved %t, %d issues", v.Score, v.Approved, len(v.Issues)))
	s.logger.Info(ctx, "verdict",
		zap.String("kind", kind),
		zap.Int("score", v.Score),
		zap.Bool("approved", v.Approved),
		zap.String("escalation", string(v.Escalation)),
		zap.Bool("fallback", v.Fallback),
	)
	return nil
}

func (s *Supervisor) supervisorState() state.SupervisorState {
	if st := s.current().Supervisor; st != nil {
		return *st
	}
	return state.SupervisorState{}
}

// agentStats summarizes the other agents' counters for verification.
func (s *Supervisor) agentStats() string {
	var b strings.Builder
	for _, a := range s.store.Agents() {
		st := a.State
		switch {
		case st.Planner != nil:
			fmt.Fprintf(&b, "%s: %d plans, %d replans, %d tasks planned, %d failed attempts\n",
				a.Name, st.Planner.PlansCreated, st.Planner.Replans, st.Planner.TasksPlanned, st.Planner.FailedAttempts)
		case st.Coder != nil:
			fmt.Fprintf(&b, "%s: %d implemented, %d fixes, %d blocked, %d files\n",
				a.Name, st.Coder.TasksImplemented, st.Coder.FixesApplied, st.Coder.Blocked, len(st.Coder.FilesModified))
		case st.Tester != nil:
			fmt.Fprintf(&b, "%s: %d reports, %d/%d tests passed\n",
				a.Name, st.Tester.Reports, st.Tester.TestsPassed, st.Tester.TestsRun)
		}
	}
	return b.String()
}
