package agents

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/decision"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planned(t *testing.T, team *Team, store *state.Store) (*state.Goal, []*state.Task) {
	t.Helper()
	g, err := team.Planner.CreatePlan(context.Background(), "build a calculator")
	require.NoError(t, err)
	tasks, err := store.TasksByGoal("planner", g.ID)
	require.NoError(t, err)
	return g, tasks
}

func TestSupervisor_ReviewPlan(t *testing.T) {
	exec := newScripted().
		reply("planner", twoTaskPlan).
		reply("supervisor", `{"score":82,"approved":true,"recommendation":"approve"}`, "Looks weak. Score: 40\n- too vague\n- no tests")
	team, store := newTestTeam(t, exec)
	ctx := context.Background()
	g, tasks := planned(t, team, store)

	v, err := team.Supervisor.ReviewPlan(ctx, g, tasks)
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.Equal(t, 82, v.Score)
	// The task without criteria is reported to the supervisor.
	assert.Contains(t, exec.prompts["supervisor"][0], "no verification criteria")

	v, err = team.Supervisor.ReviewPlan(ctx, g, tasks)
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.True(t, v.Fallback)
	assert.Equal(t, 40, v.Score)
	assert.Equal(t, []string{"too vague", "no tests"}, v.Issues)
	assert.Equal(t, decision.EscalationCorrect, v.Escalation)

	a, err := store.Agent("supervisor")
	require.NoError(t, err)
	st := a.State.Supervisor
	assert.Equal(t, 2, st.Reviews)
	assert.Equal(t, 1, st.Approvals)
	assert.Equal(t, 1, st.Rejections)
	assert.Equal(t, 40, st.LastScore)
	assert.Equal(t, string(decision.EscalationCorrect), st.Escalation)
}

func TestSupervisor_ConfiguredThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.ApproveThreshold = 90
	exec := newScripted().
		reply("planner", twoTaskPlan).
		reply("supervisor", `{"score":85,"approved":true}`)
	store := state.New()
	team := NewTeam(Deps{Store: store, Executor: exec, Config: cfg})
	require.NoError(t, team.Register())
	t.Cleanup(team.Close)
	assert.Equal(t, 90, team.Supervisor.Threshold())

	g, tasks := planned(t, team, store)
	v, err := team.Supervisor.ReviewPlan(context.Background(), g, tasks)
	require.NoError(t, err)
	assert.False(t, v.Approved)
}

func TestSupervisor_VerifyGoalIncompleteTasksBlockApproval(t *testing.T) {
	exec := newScripted().
		reply("planner", twoTaskPlan).
		reply("supervisor", `{"score":95,"approved":true}`, `{"score":95,"approved":true}`)
	team, store := newTestTeam(t, exec)
	ctx := context.Background()
	g, tasks := planned(t, team, store)

	require.NoError(t, team.Planner.MarkTaskCompleted(tasks[0].ID, "done"))
	tasks, _ = store.TasksByGoal("planner", g.ID)
	v, err := team.Supervisor.VerifyGoal(ctx, g, tasks)
	require.NoError(t, err)
	assert.False(t, v.Approved)
	require.Len(t, v.Issues, 1)
	assert.Contains(t, v.Issues[0], "wire cli")
	assert.Contains(t, exec.prompts["supervisor"][0], "Agent statistics")
	assert.Contains(t, exec.prompts["supervisor"][0], "planner: 1 plans")

	require.NoError(t, team.Planner.MarkTaskCompleted(tasks[1].ID, "done"))
	tasks, _ = store.TasksByGoal("planner", g.ID)
	v, err = team.Supervisor.VerifyGoal(ctx, g, tasks)
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.Empty(t, v.Issues)
}

func TestSupervisor_Diagnose(t *testing.T) {
	exec := newScripted().
		reply("planner", twoTaskPlan).
		reply("supervisor", `{"decision":"clarify","reason":"ambiguous"}`, "Decision: retry, it was a flake")
	team, store := newTestTeam(t, exec)
	ctx := context.Background()
	_, tasks := planned(t, team, store)

	d, err := team.Supervisor.Diagnose(ctx, tasks[0], "tests failed")
	require.NoError(t, err)
	assert.Equal(t, decision.DiagnosisReplan, d.Decision)
	assert.Equal(t, "ambiguous", d.Reason)

	d, err = team.Supervisor.Diagnose(ctx, tasks[0], "tests failed")
	require.NoError(t, err)
	assert.Equal(t, decision.DiagnosisRetry, d.Decision)
	assert.True(t, d.Fallback)

	a, _ := store.Agent("supervisor")
	assert.Equal(t, string(decision.DiagnosisRetry), a.State.Supervisor.LastDiagnosis)
}
