package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// scripted replies to each agent in order and keeps the prompts it saw.
type scripted struct {
	replies map[string][]string
	prompts map[string][]string
	err     error
}

func newScripted() *scripted {
	return &scripted{replies: map[string][]string{}, prompts: map[string][]string{}}
}

func (s *scripted) reply(agent string, responses ...string) *scripted {
	s.replies[agent] = append(s.replies[agent], responses...)
	return s
}

func (s *scripted) Execute(_ context.Context, agent, prompt string, _ executor.Options) (*executor.Result, error) {
	s.prompts[agent] = append(s.prompts[agent], prompt)
	if s.err != nil {
		return nil, s.err
	}
	queue := s.replies[agent]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted reply for %s", agent)
	}
	s.replies[agent] = queue[1:]
	res := &executor.Result{Response: queue[0]}
	if raw, ok := executor.ExtractJSON(queue[0]); ok {
		res.StructuredOutput = raw
	}
	return res, nil
}

func newTestTeam(t *testing.T, exec executor.Executor) (*Team, *state.Store) {
	t.Helper()
	store := state.New()
	team := NewTeam(Deps{Store: store, Executor: exec, Config: config.Default()})
	require.NoError(t, team.Register())
	t.Cleanup(team.Close)
	return team, store
}

func TestTeam_Register(t *testing.T) {
	team, store := newTestTeam(t, newScripted())
	assert.Equal(t, []string{"planner", "coder", "tester", "supervisor"}, team.Names())
	require.Len(t, store.Agents(), 4)

	coder, err := store.Agent("coder")
	require.NoError(t, err)
	assert.Equal(t, state.RoleCoder, coder.Role)
	assert.Equal(t, []string{"planner", "tester"}, coder.SubscribesTo)
	assert.NotNil(t, coder.State.Coder)

	// Registering again keeps the agents and does not double subscribe.
	require.NoError(t, team.Register())
	require.Len(t, store.Agents(), 4)
	g, err := store.SetGoal("planner", "goal", nil)
	require.NoError(t, err)
	_, err = store.AddTask("planner", state.TaskSpec{Description: "write it", ParentGoalID: g.ID})
	require.NoError(t, err)
	in, err := store.Interactions("coder")
	require.NoError(t, err)
	assert.Len(t, in, 1)
}

func TestObserve_RecordsPeerTaskAndOutputEvents(t *testing.T) {
	_, store := newTestTeam(t, newScripted())

	g, err := store.SetGoal("planner", "goal", nil)
	require.NoError(t, err)
	task, err := store.AddTask("planner", state.TaskSpec{Description: "write it", ParentGoalID: g.ID})
	require.NoError(t, err)
	require.NoError(t, store.AddMemory("planner", state.MemoryEntry{Content: "noted"}))
	require.NoError(t, store.AddOutput("tester", state.Output{TaskID: task.ID, Content: "3 passed\nall good"}))

	coder, err := store.Interactions("coder")
	require.NoError(t, err)
	require.Len(t, coder, 2, "memory events are not interactions")
	assert.Equal(t, "planner", coder[0].With)
	assert.Equal(t, string(state.EventTaskAdded), coder[0].Kind)
	assert.Equal(t, "write it", coder[0].Summary)
	assert.Equal(t, "tester", coder[1].With)
	assert.Equal(t, "3 passed", coder[1].Summary)

	// The tester only listens to the coder.
	tester, err := store.Interactions("tester")
	require.NoError(t, err)
	assert.Empty(t, tester)

	// Nobody records its own events.
	planner, err := store.Interactions("planner")
	require.NoError(t, err)
	for _, in := range planner {
		assert.NotEqual(t, "planner", in.With)
	}
}

func TestStoreErrorsAreLogged(t *testing.T) {
	logger := logging.NewTestLogger()
	// Never registered, so every write to its slice of state fails.
	b := newBase(Deps{Store: state.New(), Executor: newScripted(), Logger: logger.Logger}, state.RoleCoder)

	b.remember("note", "something")
	logger.AssertLogged(t, zapcore.WarnLevel, "memory not recorded")

	b.observe(state.Event{
		Kind:    state.EventTaskAdded,
		Source:  "planner",
		Payload: state.TaskPayload{Task: state.Task{Description: "write it"}},
	})
	logger.AssertLogged(t, zapcore.WarnLevel, "interaction not recorded")
}

func TestAsk_WrapsExecutorError(t *testing.T) {
	exec := newScripted()
	exec.err = errors.New("boom")
	team, _ := newTestTeam(t, exec)

	_, err := team.Planner.CreatePlan(context.Background(), "goal")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.err)
	assert.Contains(t, err.Error(), "planner:")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("  first\nsecond"))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := firstLine(string(long))
	assert.Len(t, got, 203)
}
