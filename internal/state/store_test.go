package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return testTime }),
		WithIDGenerator(sequentialIDs()),
	}
	return New(append(base, opts...)...)
}

func registerPlanner(t *testing.T, s *Store) *Agent {
	t.Helper()
	a, err := s.RegisterAgent("planner", RegisterOptions{Role: RolePlanner, Model: "sonnet"})
	require.NoError(t, err)
	return a
}

func TestRegisterAgent_Duplicate(t *testing.T) {
	s := newTestStore(t)
	first := registerPlanner(t, s)

	_, err := s.RegisterAgent("planner", RegisterOptions{Role: RolePlanner})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Contains(t, err.Error(), "already registered")

	again, err := s.RegisterAgent("planner", RegisterOptions{Role: RoleCoder, AllowExisting: true})
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, RolePlanner, again.Role, "existing agent returned unchanged")
}

func TestRegisterAgent_InitializesRoleState(t *testing.T) {
	s := newTestStore(t)
	a := registerPlanner(t, s)

	assert.NotNil(t, a.State.Planner)
	assert.Nil(t, a.State.Coder)
	assert.Equal(t, testTime, a.RegisteredAt)

	_, err := s.RegisterAgent("  ", RegisterOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAgents_RegistrationOrder(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"supervisor", "coder", "planner"} {
		_, err := s.RegisterAgent(name, RegisterOptions{})
		require.NoError(t, err)
	}

	var names []string
	for _, a := range s.Agents() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"supervisor", "coder", "planner"}, names)
}

func TestWriteMethods_UnknownAgent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SetGoal("ghost", "x", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.AddTask("ghost", TaskSpec{Description: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.AddMemory("ghost", MemoryEntry{Content: "x"}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateAgentState("ghost", StateUpdate{}), ErrNotFound)
	_, err = s.ResetFailedTasks("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTask_UnknownGoalOrTask(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)

	_, err := s.AddTask("planner", TaskSpec{Description: "x", ParentGoalID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.AddSubtask("planner", "nope", TaskSpec{Description: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateTask("planner", "nope", TaskUpdate{Status: TaskFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTask_AttemptsAndTimestamps(t *testing.T) {
	now := testTime
	s := New(WithClock(func() time.Time { return now }), WithIDGenerator(sequentialIDs()))
	registerPlanner(t, s)
	task, err := s.AddTask("planner", TaskSpec{Description: "write parser"})
	require.NoError(t, err)
	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, DefaultMaxAttempts, task.MaxAttempts)

	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: TaskInProgress})
	require.NoError(t, err)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.StartedAt)
	firstStart := *task.StartedAt

	now = now.Add(time.Minute)
	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: TaskPending})
	require.NoError(t, err)
	assert.Equal(t, 1, task.Attempts, "pending does not count")

	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: TaskInProgress})
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, firstStart, *task.StartedAt, "startedAt only stamped once")

	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: TaskFailed})
	require.NoError(t, err)
	assert.Equal(t, 3, task.Attempts)

	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: TaskCompleted})
	require.NoError(t, err)
	assert.Equal(t, 3, task.Attempts)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, now, *task.CompletedAt)

	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Status: "done"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateTask_EventKinds(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	task, err := s.AddTask("planner", TaskSpec{Description: "t"})
	require.NoError(t, err)

	var kinds []EventKind
	s.SubscribeAll(func(e Event) { kinds = append(kinds, e.Kind) })

	for _, st := range []TaskStatus{TaskInProgress, TaskFailed, TaskCompleted, ""} {
		_, err := s.UpdateTask("planner", task.ID, TaskUpdate{Status: st})
		require.NoError(t, err)
	}
	assert.Equal(t, []EventKind{EventTaskUpdated, EventTaskFailed, EventTaskCompleted, EventTaskUpdated}, kinds)
}

func TestUpdateTask_MetadataMerge(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	task, err := s.AddTask("planner", TaskSpec{
		Description: "t",
		Metadata:    TaskMetadata{Complexity: ComplexityHigh, VerificationCriteria: []string{"tests pass"}}.Map(),
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkReplanEvaluated("planner", task.ID))
	_, err = s.UpdateTask("planner", task.ID, TaskUpdate{Metadata: map[string]any{MetaComplexity: nil}})
	require.NoError(t, err)

	meta := task.Meta()
	assert.True(t, meta.ReplanEvaluated)
	assert.Empty(t, meta.Complexity)
	assert.Equal(t, []string{"tests pass"}, meta.VerificationCriteria)
}

func TestAddSubtask_InheritsGoal(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	goal, err := s.SetGoal("planner", "ship it", nil)
	require.NoError(t, err)
	parent, err := s.AddTask("planner", TaskSpec{Description: "parent", ParentGoalID: goal.ID})
	require.NoError(t, err)

	sub, err := s.AddSubtask("planner", parent.ID, TaskSpec{Description: "child", ParentGoalID: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, goal.ID, sub.ParentGoalID)
	assert.Equal(t, parent.ID, sub.ParentTaskID)
	assert.Equal(t, []string{sub.ID}, parent.Subtasks)

	byGoal, err := s.TasksByGoal("planner", goal.ID)
	require.NoError(t, err)
	assert.Len(t, byGoal, 2)
}

func TestCompletingLastSubtaskCompletesBlockedParent(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	goal, _ := s.SetGoal("planner", "g", nil)
	parent, _ := s.AddTask("planner", TaskSpec{Description: "p", ParentGoalID: goal.ID})
	a, _ := s.AddSubtask("planner", parent.ID, TaskSpec{Description: "a"})
	b, _ := s.AddSubtask("planner", parent.ID, TaskSpec{Description: "b"})
	_, err := s.UpdateTask("planner", parent.ID, TaskUpdate{Status: TaskBlocked})
	require.NoError(t, err)

	_, err = s.UpdateTask("planner", a.ID, TaskUpdate{Status: TaskCompleted})
	require.NoError(t, err)
	assert.Equal(t, TaskBlocked, parent.Status)

	_, err = s.UpdateTask("planner", b.ID, TaskUpdate{Status: TaskCompleted})
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, parent.Status)
}

func TestNextPendingTask_PlanOrder(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	g1, _ := s.SetGoal("planner", "one", nil)
	g2, _ := s.SetGoal("planner", "two", nil)
	t1, _ := s.AddTask("planner", TaskSpec{Description: "1", ParentGoalID: g1.ID})
	_, _ = s.AddTask("planner", TaskSpec{Description: "other", ParentGoalID: g2.ID})
	t3, _ := s.AddTask("planner", TaskSpec{Description: "3", ParentGoalID: g1.ID})

	next, ok := s.NextPendingTask("planner", g1.ID)
	require.True(t, ok)
	assert.Equal(t, t1.ID, next.ID)

	_, _ = s.UpdateTask("planner", t1.ID, TaskUpdate{Status: TaskInProgress})
	next, ok = s.NextPendingTask("planner", g1.ID)
	require.True(t, ok)
	assert.Equal(t, t3.ID, next.ID)

	_, _ = s.UpdateTask("planner", t3.ID, TaskUpdate{Status: TaskCompleted})
	_, ok = s.NextPendingTask("planner", g1.ID)
	assert.False(t, ok)

	_, ok = s.NextPendingTask("nobody", "")
	assert.False(t, ok)
}

func TestRemoveTasksByGoalID(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	g1, _ := s.SetGoal("planner", "old plan", nil)
	g2, _ := s.SetGoal("planner", "other", nil)
	a, _ := s.AddTask("planner", TaskSpec{Description: "a", ParentGoalID: g1.ID})
	keep, _ := s.AddTask("planner", TaskSpec{Description: "keep", ParentGoalID: g2.ID})
	sub, _ := s.AddSubtask("planner", a.ID, TaskSpec{Description: "sub"})

	var payload TasksRemovedPayload
	s.Subscribe(EventTasksRemoved, func(e Event) { payload = e.Payload.(TasksRemovedPayload) })

	removed, err := s.RemoveTasksByGoalID("planner", g1.ID, "superseded")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, sub.ID}, removed)
	assert.Equal(t, "superseded", payload.Reason)
	assert.Equal(t, removed, payload.TaskIDs)

	tasks, _ := s.Tasks("planner")
	require.Len(t, tasks, 1)
	assert.Equal(t, keep.ID, tasks[0].ID)
}

func TestGoals(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)

	_, ok := s.ActiveGoal("planner")
	assert.False(t, ok)

	g1, _ := s.SetGoal("planner", "first", map[string]any{"origin": "cli"})
	g2, _ := s.SetGoal("planner", "second", nil)

	active, ok := s.ActiveGoal("planner")
	require.True(t, ok)
	assert.Equal(t, g2.ID, active.ID)

	_, err := s.UpdateGoal("planner", g2.ID, GoalUpdate{Status: GoalCompleted, Metadata: map[string]any{"score": "90"}})
	require.NoError(t, err)
	active, ok = s.ActiveGoal("planner")
	require.True(t, ok)
	assert.Equal(t, g1.ID, active.ID)

	got, err := s.Goal("planner", g2.ID)
	require.NoError(t, err)
	assert.Equal(t, "90", got.Metadata["score"])

	_, err = s.UpdateGoal("planner", "missing", GoalUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)

	goals, _ := s.Goals("planner")
	assert.Len(t, goals, 2)
}

func TestAddMemory_KeepsLast100InOrder(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)

	for i := 0; i < 110; i++ {
		require.NoError(t, s.AddMemory("planner", MemoryEntry{Content: fmt.Sprintf("m%d", i)}))
	}

	mem, err := s.Memory("planner")
	require.NoError(t, err)
	require.Len(t, mem, MemoryLimit)
	assert.Equal(t, "m10", mem[0].Content)
	assert.Equal(t, "m109", mem[99].Content)
	for i, m := range mem {
		assert.Equal(t, fmt.Sprintf("m%d", i+10), m.Content)
	}
}

func TestBoundedOutputsAndInteractions(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)

	for i := 0; i < 60; i++ {
		require.NoError(t, s.AddOutput("planner", Output{Content: fmt.Sprintf("o%d", i)}))
	}
	for i := 0; i < 105; i++ {
		require.NoError(t, s.RecordInteraction("planner", Interaction{With: "coder", Summary: fmt.Sprintf("i%d", i)}))
	}

	outs, _ := s.Outputs("planner")
	require.Len(t, outs, OutputLimit)
	assert.Equal(t, "o10", outs[0].Content)

	ins, _ := s.Interactions("planner")
	require.Len(t, ins, InteractionLimit)
	assert.Equal(t, "i5", ins[0].Summary)
}

func TestEventLogCapped(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	for i := 0; i < EventLogLimit+20; i++ {
		require.NoError(t, s.AddMemory("planner", MemoryEntry{Content: "x"}))
	}
	log := s.EventLog()
	assert.Len(t, log, EventLogLimit)
	assert.Equal(t, EventMemoryAdded, log[0].Kind, "registration event evicted first")
}

func TestUpdateAgentState_ShallowMerge(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("tester", RegisterOptions{Role: RoleTester})
	require.NoError(t, err)

	var change StateChangePayload
	s.Subscribe(EventAgentStateChanged, func(e Event) { change = e.Payload.(StateChangePayload) })

	require.NoError(t, s.UpdateAgentState("tester", StateUpdate{
		Tester:   &TesterState{Reports: 1, TestsRun: 4, TestsPassed: 3, TestsFailed: 1},
		Metadata: map[string]any{"lastReport": "r1", "flaky": true},
	}))
	require.NoError(t, s.UpdateAgentState("tester", StateUpdate{
		Metadata: map[string]any{"flaky": nil, "suite": "unit"},
	}))

	a, _ := s.Agent("tester")
	assert.Equal(t, 4, a.State.Tester.TestsRun)
	assert.InDelta(t, 0.75, a.State.Tester.PassRate(), 0.001)
	assert.Equal(t, map[string]any{"lastReport": "r1", "suite": "unit"}, a.State.Metadata)

	assert.Equal(t, "r1", change.Old.Metadata["lastReport"])
	assert.Equal(t, true, change.Old.Metadata["flaky"])
	assert.Equal(t, "unit", change.New.Metadata["suite"])
}

func TestSimilarFailures(t *testing.T) {
	s := newTestStore(t)
	s.RecordFailurePattern(FailurePattern{TaskDescription: "parse config file", FailurePattern: "yaml syntax error"})
	s.RecordFailurePattern(FailurePattern{TaskDescription: "build docker image", FailurePattern: "network timeout"})
	s.RecordFailurePattern(FailurePattern{TaskDescription: "load config", FailurePattern: "SYNTAX error in file"})
	s.RecordFailurePattern(FailurePattern{TaskDescription: "render page", FailurePattern: "template missing"})

	got := s.SimilarFailures("Syntax error while reading config file", 10)
	require.Len(t, got, 2)
	// "syntax", "error", "while", "reading", "config", "file": first pattern matches
	// syntax, error, config, file; third matches syntax, error, config, file too, so
	// insertion order decides.
	assert.Equal(t, "parse config file", got[0].TaskDescription)
	assert.Equal(t, "load config", got[1].TaskDescription)

	assert.Len(t, s.SimilarFailures("Syntax error while reading config file", 1), 1)
	assert.Empty(t, s.SimilarFailures("a an the", 5), "short words are not keywords")
	assert.Empty(t, s.SimilarFailures("unrelated gibberish", 5))
}

func TestSimilarFailures_RanksByScore(t *testing.T) {
	s := newTestStore(t)
	s.RecordFailurePattern(FailurePattern{TaskDescription: "one", FailurePattern: "timeout"})
	s.RecordFailurePattern(FailurePattern{TaskDescription: "two", FailurePattern: "timeout connecting database"})

	got := s.SimilarFailures("timeout connecting database", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].TaskDescription)
}

func TestFailurePatternsCapped(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 60; i++ {
		s.RecordFailurePattern(FailurePattern{TaskDescription: fmt.Sprintf("t%d", i)})
	}
	fps := s.FailurePatterns()
	require.Len(t, fps, FailurePatternLimit)
	assert.Equal(t, "t10", fps[0].TaskDescription)
}

func TestRecordInvocation(t *testing.T) {
	s := newTestStore(t, WithMaxInvocations(2))
	registerPlanner(t, s)

	var sources []string
	s.Subscribe(EventInvocationRecorded, func(e Event) { sources = append(sources, e.Source) })

	inv := s.RecordInvocation(Invocation{AgentName: "planner", Prompt: "p1", Status: InvocationSuccess})
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, testTime, inv.Timestamp)
	s.RecordInvocation(Invocation{AgentName: "unregistered", Prompt: "p2"})
	s.RecordInvocation(Invocation{AgentName: "planner", Prompt: "p3"})

	invs := s.Invocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "p2", invs[0].Prompt)
	assert.Equal(t, []string{"planner", CoreSource, "planner"}, sources)
}

func TestWorkflowLifecycle(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.SetPhase(PhasePlanning), ErrNoWorkflow)
	assert.ErrorIs(t, s.CompleteWorkflow(WorkflowCompleted, nil), ErrNoWorkflow)
	_, ok := s.Workflow()
	assert.False(t, ok)

	var phases []PhasePayload
	s.Subscribe(EventPhaseChanged, func(e Event) { phases = append(phases, e.Payload.(PhasePayload)) })

	s.StartWorkflow("run", "build a thing", WorkflowConfig{MaxFixCycles: 3})
	require.NoError(t, s.SetPhase(PhasePlanning))
	require.NoError(t, s.SetPhase(PhaseExecution))
	require.NoError(t, s.CompleteWorkflow(WorkflowCompleted, &WorkflowResult{Success: true, TasksCompleted: 2}))

	w, ok := s.Workflow()
	require.True(t, ok)
	assert.False(t, w.Active)
	assert.Equal(t, WorkflowCompleted, w.Status)
	assert.Equal(t, PhaseExecution, w.CurrentPhase)
	require.NotNil(t, w.Result)
	assert.Equal(t, 2, w.Result.TasksCompleted)
	assert.Equal(t, []PhasePayload{{From: PhaseIdle, To: PhasePlanning}, {From: PhasePlanning, To: PhaseExecution}}, phases)
}

func TestReopenWorkflow(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.ReopenWorkflow(), ErrNoWorkflow)

	s.StartWorkflow("run", "goal", WorkflowConfig{})
	require.NoError(t, s.SetPhase(PhaseExecution))
	require.NoError(t, s.CompleteWorkflow(WorkflowFailed, &WorkflowResult{Error: "boom"}))
	require.NoError(t, s.ReopenWorkflow())

	w, _ := s.Workflow()
	assert.True(t, w.Active)
	assert.Equal(t, WorkflowRunning, w.Status)
	assert.Nil(t, w.EndTime)
	assert.Nil(t, w.Result)
	assert.Equal(t, PhaseExecution, w.CurrentPhase)
	assert.Equal(t, EventWorkflowStarted, s.EventLog()[len(s.EventLog())-1].Kind)
}

func TestResetFailedTasks(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	goal, _ := s.SetGoal("planner", "g", nil)

	failed, _ := s.AddTask("planner", TaskSpec{Description: "failed", ParentGoalID: goal.ID})
	_, _ = s.UpdateTask("planner", failed.ID, TaskUpdate{Status: TaskInProgress})
	_, _ = s.UpdateTask("planner", failed.ID, TaskUpdate{Status: TaskFailed})
	require.Equal(t, 2, failed.Attempts)
	require.NoError(t, s.MarkReplanEvaluated("planner", failed.ID))

	running, _ := s.AddTask("planner", TaskSpec{Description: "running", ParentGoalID: goal.ID})
	_, _ = s.UpdateTask("planner", running.ID, TaskUpdate{Status: TaskInProgress})

	orphan, _ := s.AddTask("planner", TaskSpec{Description: "orphan", ParentGoalID: goal.ID})
	_, _ = s.UpdateTask("planner", orphan.ID, TaskUpdate{Status: TaskBlocked})

	parent, _ := s.AddTask("planner", TaskSpec{Description: "parent", ParentGoalID: goal.ID})
	_, _ = s.AddSubtask("planner", parent.ID, TaskSpec{Description: "child"})
	_, _ = s.UpdateTask("planner", parent.ID, TaskUpdate{Status: TaskBlocked})

	done, _ := s.AddTask("planner", TaskSpec{Description: "done", ParentGoalID: goal.ID})
	_, _ = s.UpdateTask("planner", done.ID, TaskUpdate{Status: TaskCompleted})

	counts, err := s.ResetFailedTasks("planner")
	require.NoError(t, err)
	assert.Equal(t, ResetCounts{Failed: 1, InProgress: 1, OrphanedBlocked: 1}, counts)
	assert.Equal(t, 3, counts.Total())

	assert.Equal(t, TaskPending, failed.Status)
	assert.Equal(t, 0, failed.Attempts)
	assert.False(t, failed.Meta().ReplanEvaluated)
	assert.Equal(t, TaskPending, running.Status)
	assert.Equal(t, TaskPending, orphan.Status)
	assert.Equal(t, TaskBlocked, parent.Status)
	assert.Equal(t, TaskCompleted, done.Status)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	registerPlanner(t, s)
	s.StartWorkflow("w", "g", WorkflowConfig{})
	s.RecordInvocation(Invocation{AgentName: "planner"})

	calls := 0
	s.SubscribeAll(func(Event) { calls++ })
	s.Reset()

	assert.Empty(t, s.Agents())
	assert.Empty(t, s.Invocations())
	assert.Empty(t, s.EventLog())
	_, ok := s.Workflow()
	assert.False(t, ok)

	registerPlanner(t, s)
	assert.Equal(t, 1, calls, "subscriptions survive reset")
}
