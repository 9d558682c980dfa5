package agents

import (
	"context"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"go.uber.org/zap"
)

// Tester checks an implementation against the task's criteria.
type Tester struct {
	base
}

// NewTester returns the tester agent.
func NewTester(d Deps) *Tester {
	return &Tester{base: newBase(d, state.RoleTester)}
}

// Test runs the task's verification and returns the report together with
// the individual failures it names.
func (t *Tester) Test(ctx context.Context, task *state.Task, impl decision.OutputReport) (decision.OutputReport, []string, error) {
	res, err := t.ask(ctx, testPrompt(task, impl))
	if err != nil {
		return decision.OutputReport{}, nil, err
	}
	report, failures := parseTestReport(res)

	if err := t.store.AddOutput(t.name, state.Output{
		TaskID:  task.ID,
		Content: res.Response,
		Metadata: map[string]any{
			"kind":        string(report.Kind),
			"status":      report.Status,
			"testsRun":    report.TestsRun,
			"testsPassed": report.TestsPassed,
			"testsFailed": report.TestsFailed,
		},
	}); err != nil {
		return report, failures, err
	}

	var st state.TesterState
	if cur := t.current().Tester; cur != nil {
		st = *cur
	}
	st.Reports++
	st.TestsRun += report.TestsRun
	st.TestsPassed += report.TestsPassed
	st.TestsFailed += report.TestsFailed
	if err := t.store.UpdateAgentState(t.name, state.StateUpdate{Tester: &st}); err != nil {
		return report, failures, err
	}
	t.logger.Debug(ctx, "test report",
		zap.String("task_id", task.ID),
		zap.String("status", report.Status),
		zap.Int("passed", report.TestsPassed),
		zap.Int("failed", report.TestsFailed),
	)
	return report, failures, nil
}
