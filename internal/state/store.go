// Package state is the single source of truth for a conductor run.
//
// A Store holds every agent with its goals, tasks, memory, outputs and
// interactions, plus the workflow, the invocation audit trail, failure
// patterns and a bounded event log. Every mutation emits an Event, first to
// the subscribers of its kind and then to wildcard subscribers, before the
// mutating call returns.
//
// The Store has no locks. One Store is constructed by main and handed to every
// component; all calls must come from the goroutine that drives the run.
// Collaborators running elsewhere, such as the dashboard, observe it only
// through event handlers.
package state

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/persist"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns all run state.
type Store struct {
	agents          map[string]*Agent
	order           []string
	workflow        *Workflow
	invocations     *Ring[Invocation]
	failurePatterns *Ring[FailurePattern]
	events          *Ring[Event]

	bus     *bus
	gateway *persist.Gateway
	logger  *logging.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithGateway enables Snapshot, LoadSnapshot and ResumeInfo.
func WithGateway(g *persist.Gateway) Option {
	return func(s *Store) {
		s.gateway = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithMaxInvocations caps the invocation audit trail. Zero keeps everything.
func WithMaxInvocations(n int) Option {
	return func(s *Store) {
		s.invocations.SetLimit(n)
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		agents:          make(map[string]*Agent),
		invocations:     NewRing[Invocation](0),
		failurePatterns: NewRing[FailurePattern](FailurePatternLimit),
		events:          NewRing[Event](EventLogLimit),
		logger:          logging.Nop(),
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("state")
	s.bus = newBus(s.logger)
	return s
}

// emit appends an event to the log and dispatches it.
func (s *Store) emit(kind EventKind, source string, change ChangeType, payload Payload) {
	e := Event{
		Kind:       kind,
		Timestamp:  s.now(),
		Source:     source,
		ChangeType: change,
		Payload:    payload,
	}
	if a, ok := s.agents[source]; ok {
		st := a.State.Clone()
		e.AgentState = &st
	}
	s.events.Push(e)
	s.logger.Trace(context.Background(), "event",
		zap.String("event.kind", string(kind)),
		zap.String("event.source", source),
		zap.String("event.change", string(change)),
	)
	s.bus.dispatch(e)
}

func (s *Store) agent(name string) (*Agent, error) {
	a, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}
	return a, nil
}

func (s *Store) touch(a *Agent) {
	a.LastActivity = s.now()
}

// RegisterAgent adds an agent. Registering a taken name fails with
// ErrAlreadyRegistered unless opts.AllowExisting is set, in which case the
// existing agent is returned unchanged.
func (s *Store) RegisterAgent(name string, opts RegisterOptions) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("agent name is empty: %w", ErrInvalidArgument)
	}
	if existing, ok := s.agents[name]; ok {
		if opts.AllowExisting {
			return existing, nil
		}
		return nil, fmt.Errorf("agent %q: %w", name, ErrAlreadyRegistered)
	}

	now := s.now()
	a := &Agent{
		Name:          name,
		Role:          opts.Role,
		Model:         opts.Model,
		FallbackModel: opts.FallbackModel,
		State:         NewAgentState(opts.Role),
		SubscribesTo:  slices.Clone(opts.SubscribesTo),
		Tools:         slices.Clone(opts.Tools),
		Goals:         []*Goal{},
		Tasks:         []*Task{},
		RegisteredAt:  now,
		LastActivity:  now,
	}
	a.Memory.SetLimit(MemoryLimit)
	a.Outputs.SetLimit(OutputLimit)
	a.Interactions.SetLimit(InteractionLimit)

	s.agents[name] = a
	s.order = append(s.order, name)
	s.emit(EventAgentRegistered, name, ChangeAdded, AgentPayload{Name: name, Role: opts.Role, Model: opts.Model})
	return a, nil
}

// Agent returns the named agent.
func (s *Store) Agent(name string) (*Agent, error) {
	return s.agent(name)
}

// Agents returns all agents in registration order.
func (s *Store) Agents() []*Agent {
	out := make([]*Agent, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.agents[name])
	}
	return out
}

// UpdateAgentState merges u into the agent's state.
func (s *Store) UpdateAgentState(name string, u StateUpdate) error {
	a, err := s.agent(name)
	if err != nil {
		return err
	}
	old := a.State.Clone()
	u.applyTo(&a.State)
	s.touch(a)
	s.emit(EventAgentStateChanged, name, ChangeModified, StateChangePayload{Old: old, New: a.State.Clone()})
	return nil
}

// SetGoal creates an active goal for the agent.
func (s *Store) SetGoal(agentName, description string, metadata map[string]any) (*Goal, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	now := s.now()
	g := &Goal{
		ID:          s.newID(),
		Description: description,
		Status:      GoalActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    maps.Clone(metadata),
	}
	a.Goals = append(a.Goals, g)
	s.touch(a)
	s.emit(EventGoalSet, agentName, ChangeAdded, GoalPayload{Goal: *g})
	return g, nil
}

// UpdateGoal applies u to the goal.
func (s *Store) UpdateGoal(agentName, goalID string, u GoalUpdate) (*Goal, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	g := findGoal(a, goalID)
	if g == nil {
		return nil, fmt.Errorf("goal %q: %w", goalID, ErrNotFound)
	}
	if u.Status != "" {
		g.Status = u.Status
	}
	if u.Description != "" {
		g.Description = u.Description
	}
	if len(u.Metadata) > 0 {
		if g.Metadata == nil {
			g.Metadata = map[string]any{}
		}
		maps.Copy(g.Metadata, u.Metadata)
	}
	g.UpdatedAt = s.now()
	s.touch(a)
	s.emit(EventGoalUpdated, agentName, ChangeModified, GoalPayload{Goal: *g})
	return g, nil
}

// Goal returns one goal.
func (s *Store) Goal(agentName, goalID string) (*Goal, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	g := findGoal(a, goalID)
	if g == nil {
		return nil, fmt.Errorf("goal %q: %w", goalID, ErrNotFound)
	}
	return g, nil
}

// ActiveGoal returns the most recently created active goal.
func (s *Store) ActiveGoal(agentName string) (*Goal, bool) {
	a, ok := s.agents[agentName]
	if !ok {
		return nil, false
	}
	for i := len(a.Goals) - 1; i >= 0; i-- {
		if a.Goals[i].Status == GoalActive {
			return a.Goals[i], true
		}
	}
	return nil, false
}

// Goals returns the agent's goals in creation order.
func (s *Store) Goals(agentName string) ([]*Goal, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Goals), nil
}

func findGoal(a *Agent, id string) *Goal {
	for _, g := range a.Goals {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func findTask(a *Agent, id string) *Task {
	for _, t := range a.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Store) newTask(spec TaskSpec) *Task {
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	md := maps.Clone(spec.Metadata)
	if md == nil {
		md = map[string]any{}
	}
	return &Task{
		ID:           s.newID(),
		Description:  spec.Description,
		Status:       TaskPending,
		MaxAttempts:  maxAttempts,
		ParentGoalID: spec.ParentGoalID,
		Subtasks:     []string{},
		CreatedAt:    s.now(),
		Metadata:     md,
	}
}

// AddTask appends a pending task to the agent's plan.
func (s *Store) AddTask(agentName string, spec TaskSpec) (*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	if spec.ParentGoalID != "" && findGoal(a, spec.ParentGoalID) == nil {
		return nil, fmt.Errorf("goal %q: %w", spec.ParentGoalID, ErrNotFound)
	}
	t := s.newTask(spec)
	a.Tasks = append(a.Tasks, t)
	s.touch(a)
	s.emit(EventTaskAdded, agentName, ChangeAdded, TaskPayload{Task: t.Clone()})
	return t, nil
}

// AddSubtask appends a task under parentID. The subtask inherits the
// parent's goal so goal queries still find it.
func (s *Store) AddSubtask(agentName, parentID string, spec TaskSpec) (*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	parent := findTask(a, parentID)
	if parent == nil {
		return nil, fmt.Errorf("task %q: %w", parentID, ErrNotFound)
	}
	spec.ParentGoalID = parent.ParentGoalID
	t := s.newTask(spec)
	t.ParentTaskID = parent.ID
	a.Tasks = append(a.Tasks, t)
	parent.Subtasks = append(parent.Subtasks, t.ID)
	s.touch(a)
	s.emit(EventTaskAdded, agentName, ChangeAdded, TaskPayload{Task: t.Clone()})
	return t, nil
}

// UpdateTask applies u to the task.
//
// Attempts grow by one whenever the new status is in_progress or failed. The
// first in_progress transition stamps StartedAt and completion stamps
// CompletedAt. Completing the last open subtask of a blocked parent completes
// the parent too.
func (s *Store) UpdateTask(agentName, taskID string, u TaskUpdate) (*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	t := findTask(a, taskID)
	if t == nil {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	if u.Status != "" && !u.Status.Valid() {
		return nil, fmt.Errorf("task status %q: %w", u.Status, ErrInvalidArgument)
	}

	prev := t.Status
	if u.Description != "" {
		t.Description = u.Description
	}
	if u.MaxAttempts > 0 {
		t.MaxAttempts = u.MaxAttempts
	}
	mergeMetadata(t, u.Metadata)

	now := s.now()
	kind := EventTaskUpdated
	switch u.Status {
	case TaskInProgress:
		t.Status = u.Status
		t.Attempts++
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case TaskFailed:
		t.Status = u.Status
		t.Attempts++
		kind = EventTaskFailed
	case TaskCompleted:
		t.Status = u.Status
		t.CompletedAt = &now
		kind = EventTaskCompleted
	case TaskPending, TaskBlocked:
		t.Status = u.Status
	}
	s.touch(a)
	s.emit(kind, agentName, ChangeModified, TaskPayload{Task: t.Clone(), PreviousStatus: prev})

	if u.Status == TaskCompleted && t.ParentTaskID != "" {
		if err := s.completeParentIfDone(agentName, a, t.ParentTaskID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *Store) completeParentIfDone(agentName string, a *Agent, parentID string) error {
	parent := findTask(a, parentID)
	if parent == nil || parent.Status != TaskBlocked {
		return nil
	}
	for _, id := range parent.Subtasks {
		if sub := findTask(a, id); sub != nil && sub.Status != TaskCompleted {
			return nil
		}
	}
	_, err := s.UpdateTask(agentName, parent.ID, TaskUpdate{Status: TaskCompleted})
	return err
}

func mergeMetadata(t *Task, md map[string]any) {
	if len(md) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	for k, v := range md {
		if v == nil {
			delete(t.Metadata, k)
			continue
		}
		t.Metadata[k] = v
	}
}

// MarkReplanEvaluated flags a task so the end-of-iteration sweep does not
// force another replan for it.
func (s *Store) MarkReplanEvaluated(agentName, taskID string) error {
	_, err := s.UpdateTask(agentName, taskID, TaskUpdate{
		Metadata: map[string]any{MetaReplanEvaluated: true},
	})
	return err
}

// Task returns one task.
func (s *Store) Task(agentName, taskID string) (*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	t := findTask(a, taskID)
	if t == nil {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// Tasks returns the agent's tasks in plan order.
func (s *Store) Tasks(agentName string) ([]*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Tasks), nil
}

// TasksByGoal returns the tasks whose parent goal is goalID, in plan order.
func (s *Store) TasksByGoal(agentName, goalID string) ([]*Task, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range a.Tasks {
		if t.ParentGoalID == goalID {
			out = append(out, t)
		}
	}
	return out, nil
}

// NextPendingTask returns the first pending task of goalID in plan order.
// An empty goalID matches any goal.
func (s *Store) NextPendingTask(agentName, goalID string) (*Task, bool) {
	a, ok := s.agents[agentName]
	if !ok {
		return nil, false
	}
	for _, t := range a.Tasks {
		if t.Status == TaskPending && (goalID == "" || t.ParentGoalID == goalID) {
			return t, true
		}
	}
	return nil, false
}

// RemoveTasksByGoalID deletes every task of goalID and returns their ids.
func (s *Store) RemoveTasksByGoalID(agentName, goalID, reason string) ([]string, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	removed := []string{}
	kept := a.Tasks[:0]
	for _, t := range a.Tasks {
		if t.ParentGoalID == goalID {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	clear(a.Tasks[len(kept):])
	a.Tasks = kept
	s.touch(a)
	s.emit(EventTasksRemoved, agentName, ChangeRemoved, TasksRemovedPayload{
		GoalID:  goalID,
		Reason:  reason,
		TaskIDs: slices.Clone(removed),
	})
	return removed, nil
}

// AddMemory remembers entry, evicting the oldest beyond MemoryLimit.
func (s *Store) AddMemory(agentName string, entry MemoryEntry) error {
	a, err := s.agent(agentName)
	if err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	a.Memory.Push(entry)
	s.touch(a)
	s.emit(EventMemoryAdded, agentName, ChangeAdded, MemoryPayload{Entry: entry})
	return nil
}

// Memory returns retained memory, oldest first.
func (s *Store) Memory(agentName string) ([]MemoryEntry, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	return a.Memory.Items(), nil
}

// AddOutput stores an output, evicting the oldest beyond OutputLimit.
func (s *Store) AddOutput(agentName string, out Output) error {
	a, err := s.agent(agentName)
	if err != nil {
		return err
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = s.now()
	}
	a.Outputs.Push(out)
	s.touch(a)
	s.emit(EventOutputAdded, agentName, ChangeAdded, OutputPayload{Output: out})
	return nil
}

// Outputs returns retained outputs, oldest first.
func (s *Store) Outputs(agentName string) ([]Output, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	return a.Outputs.Items(), nil
}

// RecordInteraction stores an interaction, evicting the oldest beyond
// InteractionLimit.
func (s *Store) RecordInteraction(agentName string, in Interaction) error {
	a, err := s.agent(agentName)
	if err != nil {
		return err
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}
	a.Interactions.Push(in)
	s.touch(a)
	s.emit(EventInteractionRecorded, agentName, ChangeAdded, InteractionPayload{Interaction: in})
	return nil
}

// Interactions returns retained interactions, oldest first.
func (s *Store) Interactions(agentName string) ([]Interaction, error) {
	a, err := s.agent(agentName)
	if err != nil {
		return nil, err
	}
	return a.Interactions.Items(), nil
}

// RecordInvocation appends an executor attempt to the audit trail. The agent
// need not be registered.
func (s *Store) RecordInvocation(inv Invocation) Invocation {
	if inv.ID == "" {
		inv.ID = s.newID()
	}
	if inv.Timestamp.IsZero() {
		inv.Timestamp = s.now()
	}
	s.invocations.Push(inv)
	source := CoreSource
	if a, ok := s.agents[inv.AgentName]; ok {
		s.touch(a)
		source = a.Name
	}
	s.emit(EventInvocationRecorded, source, ChangeAdded, InvocationPayload{Invocation: inv})
	return inv
}

// Invocations returns the audit trail, oldest first.
func (s *Store) Invocations() []Invocation {
	return s.invocations.Items()
}

// RecordFailurePattern remembers a failure, keeping the newest FailurePatternLimit.
func (s *Store) RecordFailurePattern(fp FailurePattern) {
	if fp.Timestamp.IsZero() {
		fp.Timestamp = s.now()
	}
	s.failurePatterns.Push(fp)
	s.emit(EventFailurePatternRecorded, CoreSource, ChangeAdded, FailurePatternPayload{Pattern: fp})
}

// FailurePatterns returns retained patterns, oldest first.
func (s *Store) FailurePatterns() []FailurePattern {
	return s.failurePatterns.Items()
}

// SimilarFailures ranks recorded patterns by how many keywords of reason
// they contain. Keywords are the first ten words longer than three
// characters; matching ignores case. Zero scores are dropped, ties keep
// insertion order and at most limit patterns are returned.
func (s *Store) SimilarFailures(reason string, limit int) []FailurePattern {
	keywords := failureKeywords(reason)
	if len(keywords) == 0 || limit <= 0 {
		return nil
	}

	type scored struct {
		fp    FailurePattern
		score int
	}
	var matches []scored
	for _, fp := range s.failurePatterns.Items() {
		hay := strings.ToLower(fp.FailurePattern + " " + fp.TaskDescription)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(hay, kw) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{fp: fp, score: score})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int { return b.score - a.score })

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]FailurePattern, len(matches))
	for i, m := range matches {
		out[i] = m.fp
	}
	return out
}

func failureKeywords(reason string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(reason)) {
		if len(w) < minFailureKeywordLen {
			continue
		}
		out = append(out, w)
		if len(out) == maxFailureKeywords {
			break
		}
	}
	return out
}

// StartWorkflow opens the live workflow, replacing any previous one.
func (s *Store) StartWorkflow(name, goal string, cfg WorkflowConfig) *Workflow {
	s.workflow = &Workflow{
		Active:        true,
		Name:          name,
		Goal:          goal,
		StartTime:     s.now(),
		Configuration: cfg,
		Status:        WorkflowRunning,
		CurrentPhase:  PhaseIdle,
	}
	s.emit(EventWorkflowStarted, CoreSource, ChangeAdded, WorkflowPayload{Workflow: *s.workflow})
	return s.workflow
}

// CompleteWorkflow closes the live workflow.
func (s *Store) CompleteWorkflow(status WorkflowStatus, result *WorkflowResult) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}
	now := s.now()
	s.workflow.Active = false
	s.workflow.Status = status
	s.workflow.EndTime = &now
	if result != nil {
		r := *result
		s.workflow.Result = &r
	}
	s.emit(EventWorkflowCompleted, CoreSource, ChangeModified, WorkflowPayload{Workflow: *s.workflow})
	return nil
}

// ReopenWorkflow marks a loaded workflow as running again. Its start time,
// configuration and phase are kept.
func (s *Store) ReopenWorkflow() error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}
	s.workflow.Active = true
	s.workflow.Status = WorkflowRunning
	s.workflow.EndTime = nil
	s.workflow.Result = nil
	s.emit(EventWorkflowStarted, CoreSource, ChangeModified, WorkflowPayload{Workflow: *s.workflow})
	return nil
}

// SetPhase records the orchestration phase on the workflow.
func (s *Store) SetPhase(phase Phase) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}
	from := s.workflow.CurrentPhase
	s.workflow.CurrentPhase = phase
	s.emit(EventPhaseChanged, CoreSource, ChangeModified, PhasePayload{From: from, To: phase})
	return nil
}

// Workflow returns a copy of the live workflow.
func (s *Store) Workflow() (Workflow, bool) {
	if s.workflow == nil {
		return Workflow{}, false
	}
	return *s.workflow, true
}

// Subscribe registers h for one kind and returns its unsubscribe func.
func (s *Store) Subscribe(kind EventKind, h Handler) func() {
	return s.bus.subscribe(kind, h)
}

// SubscribeAll registers h for every event.
func (s *Store) SubscribeAll(h Handler) func() {
	return s.bus.subscribeAll(h)
}

// SubscribeToAgents registers h for events whose source is one of sources or
// the core. This is how agents observe each other.
func (s *Store) SubscribeToAgents(subscriber string, sources []string, h Handler) func() {
	allowed := make(map[string]bool, len(sources))
	for _, src := range sources {
		allowed[src] = true
	}
	s.logger.Debug(context.Background(), "agent subscribed",
		zap.String("agent", subscriber),
		zap.Strings("sources", sources),
	)
	return s.bus.subscribeAll(func(e Event) {
		if e.Source == CoreSource || allowed[e.Source] {
			h(e)
		}
	})
}

// EventLog returns the retained events, oldest first.
func (s *Store) EventLog() []Event {
	return s.events.Items()
}

// DroppedEvents returns how many nested events the depth guard discarded.
func (s *Store) DroppedEvents() int {
	return s.bus.dropped
}

// ResetFailedTasks returns failed and in-progress tasks to pending with zero
// attempts, and also releases blocked tasks that own no subtasks. Blocked
// tasks with subtasks stay blocked.
func (s *Store) ResetFailedTasks(agentName string) (ResetCounts, error) {
	var counts ResetCounts
	a, err := s.agent(agentName)
	if err != nil {
		return counts, err
	}
	for _, t := range a.Tasks {
		prev := t.Status
		switch {
		case t.Status == TaskFailed:
			counts.Failed++
		case t.Status == TaskInProgress:
			counts.InProgress++
		case t.Status == TaskBlocked && len(t.Subtasks) == 0:
			counts.OrphanedBlocked++
		default:
			continue
		}
		t.Status = TaskPending
		t.Attempts = 0
		delete(t.Metadata, MetaReplanEvaluated)
		s.emit(EventTaskUpdated, agentName, ChangeModified, TaskPayload{Task: t.Clone(), PreviousStatus: prev})
	}
	if counts.Total() > 0 {
		s.touch(a)
	}
	return counts, nil
}

// Reset drops all live state. Subscriptions survive.
func (s *Store) Reset() {
	s.agents = make(map[string]*Agent)
	s.order = nil
	s.workflow = nil
	s.invocations.Clear()
	s.failurePatterns.Clear()
	s.events.Clear()
}
