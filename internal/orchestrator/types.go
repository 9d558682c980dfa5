package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

// WorkflowName names the workflow record in the store.
const WorkflowName = "conductor"

// maxReplanDepth bounds how deep subtasks may be nested by replanning.
const maxReplanDepth = 3

var (
	// ErrPlanRejected is returned when plan review never approves and the
	// configured action is abort.
	ErrPlanRejected = errors.New("plan rejected by supervisor")

	// ErrAborted is returned when the run was aborted or its context
	// cancelled.
	ErrAborted = errors.New("workflow aborted")
)

// Planner owns goals and tasks.
type Planner interface {
	Name() string
	CreatePlan(ctx context.Context, goal string) (*state.Goal, error)
	RevisePlan(ctx context.Context, goalID, feedback string) error
	Replan(ctx context.Context, task *state.Task, reason string, diag decision.DiagnosisResult) ([]*state.Task, error)
	MarkTaskFailed(taskID, reason string) (decision.RetryDecision, error)
	MarkTaskCompleted(taskID, summary string) error
	AbandonTask(taskID, reason string) error
}

// Coder implements tasks.
type Coder interface {
	Implement(ctx context.Context, task *state.Task) (decision.OutputReport, error)
	Fix(ctx context.Context, task *state.Task, report decision.OutputReport, failures []string) (decision.OutputReport, error)
}

// Tester verifies implementations.
type Tester interface {
	Test(ctx context.Context, task *state.Task, impl decision.OutputReport) (decision.OutputReport, []string, error)
}

// Supervisor judges plans and results.
type Supervisor interface {
	ReviewPlan(ctx context.Context, goal *state.Goal, tasks []*state.Task) (decision.Verdict, error)
	VerifyGoal(ctx context.Context, goal *state.Goal, tasks []*state.Task) (decision.Verdict, error)
	Diagnose(ctx context.Context, task *state.Task, reason string) (decision.DiagnosisResult, error)
}

// SessionRegistry exposes executor session ids for snapshots and resume.
type SessionRegistry interface {
	Sessions() map[string]string
	RestoreSessions(map[string]string)
}

// Team is the set of collaborators the orchestrator drives.
type Team struct {
	Planner    Planner
	Coder      Coder
	Tester     Tester
	Supervisor Supervisor

	// Register makes sure every agent exists in the store. It runs before a
	// fresh run and again after a snapshot has been loaded. Optional.
	Register func() error
}

// Config bounds a run.
type Config struct {
	MaxFixCycles         int
	MaxPlanRevisions     int
	MaxGoalIterations    int
	TimeLimit            time.Duration // zero means unlimited
	RequirePrePlanReview bool
	VerifyAllOutputs     bool
	PlanReviewFailure    config.PlanReviewAction
}

// ConfigFrom reads the orchestrator settings out of the loaded configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		MaxFixCycles:         c.Execution.MaxFixCycles,
		MaxPlanRevisions:     c.Execution.MaxPlanRevisions,
		MaxGoalIterations:    c.Execution.MaxGoalIterations,
		TimeLimit:            c.Execution.TimeLimit(),
		RequirePrePlanReview: c.Execution.RequirePrePlanReview,
		VerifyAllOutputs:     c.Execution.VerifyAllOutputs,
		PlanReviewFailure:    c.PlanReviewFailure.Action,
	}
}

func (c Config) workflowConfig() state.WorkflowConfig {
	return state.WorkflowConfig{
		MaxFixCycles:         c.MaxFixCycles,
		MaxPlanRevisions:     c.MaxPlanRevisions,
		MaxGoalIterations:    c.MaxGoalIterations,
		TimeLimitMS:          c.TimeLimit.Milliseconds(),
		RequirePrePlanReview: c.RequirePrePlanReview,
		VerifyAllOutputs:     c.VerifyAllOutputs,
		PlanReviewFailure:    string(c.PlanReviewFailure),
	}
}

// Result summarizes a finished run.
type Result struct {
	state.WorkflowResult

	Phase    state.Phase   `json:"phase"`
	Duration time.Duration `json:"duration"`
	CostUSD  float64       `json:"costUsd"`
}

// Progress reports a phase change.
type Progress struct {
	Phase   state.Phase
	Message string
	Elapsed time.Duration
}

// ProgressCallback receives progress updates during a run.
type ProgressCallback func(Progress)
