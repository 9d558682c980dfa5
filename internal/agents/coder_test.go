package agents

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoderAndTester(t *testing.T) {
	exec := newScripted().
		reply("planner", twoTaskPlan).
		reply("coder",
			`{"status":"complete","filesModified":["parser.go"]}`,
			`{"status":"complete","filesModified":["parser.go","parser_test.go"]}`,
			"I am blocked on a missing API key.").
		reply("tester",
			`{"status":"failed","testsRun":3,"testsPassed":2,"testsFailed":1,"failures":["TestParse"]}`,
			"3 passed, 0 failed")
	team, store := newTestTeam(t, exec)
	ctx := context.Background()
	_, tasks := planned(t, team, store)
	task := tasks[0]

	impl, err := team.Coder.Implement(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, []string{"parser.go"}, impl.FilesModified)
	assert.Contains(t, exec.prompts["coder"][0], "go test ./parser passes")

	report, failures, err := team.Tester.Test(ctx, task, impl)
	require.NoError(t, err)
	assert.Equal(t, decision.StatusFailed, report.Status)
	assert.Equal(t, []string{"TestParse"}, failures)
	assert.Contains(t, exec.prompts["tester"][0], "parser.go")

	impl, err = team.Coder.Fix(ctx, task, report, failures)
	require.NoError(t, err)
	assert.Contains(t, exec.prompts["coder"][1], "TestParse")

	report, _, err = team.Tester.Test(ctx, task, impl)
	require.NoError(t, err)
	assert.Equal(t, decision.StatusPassed, report.Status)
	assert.Empty(t, decision.CheckOutput(report))

	blocked, err := team.Coder.Implement(ctx, tasks[1])
	require.NoError(t, err)
	assert.Equal(t, decision.StatusBlocked, blocked.Status)

	coder, err := store.Agent("coder")
	require.NoError(t, err)
	cs := coder.State.Coder
	assert.Equal(t, 1, cs.TasksImplemented)
	assert.Equal(t, 1, cs.FixesApplied)
	assert.Equal(t, 1, cs.Blocked)
	assert.Equal(t, []string{"parser.go", "parser_test.go"}, cs.FilesModified)
	assert.Empty(t, cs.CurrentTaskID)

	tester, err := store.Agent("tester")
	require.NoError(t, err)
	ts := tester.State.Tester
	assert.Equal(t, 2, ts.Reports)
	assert.Equal(t, 6, ts.TestsRun)
	assert.Equal(t, 5, ts.TestsPassed)

	outs, err := store.Outputs("coder")
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, task.ID, outs[0].TaskID)
}
