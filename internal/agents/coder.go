package agents

import (
	"context"
	"slices"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

// Coder implements tasks and fixes them after failed tests.
type Coder struct {
	base
}

// NewCoder returns the coder agent.
func NewCoder(d Deps) *Coder {
	return &Coder{base: newBase(d, state.RoleCoder)}
}

// Implement asks for the task to be built and reports what changed.
func (c *Coder) Implement(ctx context.Context, task *state.Task) (decision.OutputReport, error) {
	hints := c.store.SimilarFailures(task.Description, similarFailureHints)
	return c.run(ctx, task, implementPrompt(task, hints), false)
}

// Fix asks for the failures in report to be repaired.
func (c *Coder) Fix(ctx context.Context, task *state.Task, report decision.OutputReport, failures []string) (decision.OutputReport, error) {
	return c.run(ctx, task, fixPrompt(task, report, failures), true)
}

func (c *Coder) run(ctx context.Context, task *state.Task, prompt string, fix bool) (decision.OutputReport, error) {
	st := c.coderState()
	st.CurrentTaskID = task.ID
	if err := c.store.UpdateAgentState(c.name, state.StateUpdate{Coder: &st}); err != nil {
		return decision.OutputReport{}, err
	}

	res, err := c.ask(ctx, prompt)
	if err != nil {
		return decision.OutputReport{}, err
	}
	report := parseImplementation(res)

	if err := c.store.AddOutput(c.name, state.Output{
		TaskID:  task.ID,
		Content: res.Response,
		Metadata: map[string]any{
			"kind":                  string(report.Kind),
			"status":                report.Status,
			state.MetaFilesModified: report.FilesModified,
		},
	}); err != nil {
		return report, err
	}

	st = c.coderState()
	switch {
	case report.Status == decision.StatusBlocked:
		st.Blocked++
	case fix:
		st.FixesApplied++
	default:
		st.TasksImplemented++
	}
	for _, f := range report.FilesModified {
		if !slices.Contains(st.FilesModified, f) {
			st.FilesModified = append(st.FilesModified, f)
		}
	}
	st.CurrentTaskID = ""
	if err := c.store.UpdateAgentState(c.name, state.StateUpdate{Coder: &st}); err != nil {
		return report, err
	}
	c.logger.Debug(ctx, "implementation reported",
		zap.String("task_id", task.ID),
		zap.String("status", report.Status),
		zap.Int("files", len(report.FilesModified)),
	)
	return report, nil
}

func (c *Coder) coderState() state.CoderState {
	if st := c.current().Coder; st != nil {
		return *st
	}
	return state.CoderState{}
}
