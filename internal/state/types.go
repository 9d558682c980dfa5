package state

import (
	"maps"
	"slices"
	"time"
)

// Retention limits for bounded collections.
const (
	MemoryLimit          = 100
	OutputLimit          = 50
	InteractionLimit     = 100
	EventLogLimit        = 500
	SnapshotEventLimit   = 100
	FailurePatternLimit  = 50
	DefaultMaxAttempts   = 5
	SnapshotVersion      = "1"
	CoreSource           = "core"
	maxFailureKeywords   = 10
	minFailureKeywordLen = 4
)

// Role identifies what kind of worker an agent is.
type Role string

// Agent roles.
const (
	RolePlanner    Role = "planner"
	RoleCoder      Role = "coder"
	RoleTester     Role = "tester"
	RoleSupervisor Role = "supervisor"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

// Goal statuses.
const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskBlocked:
		return true
	}
	return false
}

// Phase is a step of the orchestration state machine.
type Phase string

// Orchestration phases. Completed, Failed and Aborted are terminal.
const (
	PhaseIdle         Phase = ""
	PhasePlanning     Phase = "planning"
	PhasePlanReview   Phase = "plan_review"
	PhaseExecution    Phase = "execution"
	PhaseVerification Phase = "verification"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseAborted      Phase = "aborted"
)

// Terminal reports whether no further transitions leave p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseAborted
}

// WorkflowStatus is the outcome recorded on the workflow.
type WorkflowStatus string

// Workflow statuses. The empty status belongs to a workflow that never closed.
const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowAborted   WorkflowStatus = "aborted"
)

// Resumable reports whether a persisted workflow with status s may be resumed.
func (s WorkflowStatus) Resumable() bool {
	switch s {
	case WorkflowRunning, WorkflowFailed, WorkflowAborted, "":
		return true
	}
	return false
}

// Agent is a registered worker and everything it owns.
type Agent struct {
	Name          string            `json:"name"`
	Role          Role              `json:"role"`
	Model         string            `json:"model"`
	FallbackModel string            `json:"fallbackModel,omitempty"`
	State         AgentState        `json:"state"`
	SubscribesTo  []string          `json:"subscribesTo"`
	Tools         []string          `json:"tools,omitempty"`
	Memory        Ring[MemoryEntry] `json:"memory"`
	Goals         []*Goal           `json:"goals"`
	Tasks         []*Task           `json:"tasks"`
	Outputs       Ring[Output]      `json:"outputs"`
	Interactions  Ring[Interaction] `json:"interactions"`
	RegisteredAt  time.Time         `json:"registeredAt"`
	LastActivity  time.Time         `json:"lastActivity"`
}

// normalize restores ring limits and nil slices after decoding.
func (a *Agent) normalize() {
	a.Memory.SetLimit(MemoryLimit)
	a.Outputs.SetLimit(OutputLimit)
	a.Interactions.SetLimit(InteractionLimit)
	if a.State.Role == "" {
		a.State.Role = a.Role
	}
	if a.State.Metadata == nil {
		a.State.Metadata = map[string]any{}
	}
	if a.Goals == nil {
		a.Goals = []*Goal{}
	}
	if a.Tasks == nil {
		a.Tasks = []*Task{}
	}
	for _, t := range a.Tasks {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		if t.Subtasks == nil {
			t.Subtasks = []string{}
		}
	}
}

// Goal is a unit of intent owned by an agent.
type Goal struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Status      GoalStatus     `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// GoalUpdate lists the goal fields to change. Zero values are left alone.
type GoalUpdate struct {
	Status      GoalStatus
	Description string
	Metadata    map[string]any
}

// Task is a unit of work inside a goal's plan.
type Task struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Status       TaskStatus     `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"maxAttempts"`
	ParentGoalID string         `json:"parentGoalId,omitempty"`
	ParentTaskID string         `json:"parentTaskId,omitempty"`
	Subtasks     []string       `json:"subtasks"`
	CreatedAt    time.Time      `json:"createdAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

// Meta decodes the well-known metadata keys.
func (t *Task) Meta() TaskMetadata {
	return TaskMetadataOf(t.Metadata)
}

// Clone returns a deep copy of t.
func (t *Task) Clone() Task {
	c := *t
	c.Subtasks = slices.Clone(t.Subtasks)
	c.Metadata = maps.Clone(t.Metadata)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// TaskSpec describes a task to add.
type TaskSpec struct {
	Description  string
	ParentGoalID string
	MaxAttempts  int
	Metadata     map[string]any
}

// TaskUpdate lists the task fields to change. Zero values are left alone;
// metadata keys are merged, and a nil value removes the key.
type TaskUpdate struct {
	Status      TaskStatus
	Description string
	MaxAttempts int
	Metadata    map[string]any
}

// MemoryEntry is one remembered fact.
type MemoryEntry struct {
	Kind      string    `json:"kind,omitempty"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Output is a produced artifact, usually the result of a task.
type Output struct {
	TaskID    string         `json:"taskId,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Interaction records a message exchanged with another agent.
type Interaction struct {
	With      string    `json:"with"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowConfig is the execution configuration captured at workflow start.
type WorkflowConfig struct {
	MaxFixCycles         int    `json:"maxFixCycles"`
	MaxPlanRevisions     int    `json:"maxPlanRevisions"`
	MaxGoalIterations    int    `json:"maxGoalIterations"`
	TimeLimitMS          int64  `json:"timeLimit"`
	RequirePrePlanReview bool   `json:"requirePrePlanReview"`
	VerifyAllOutputs     bool   `json:"verifyAllOutputs"`
	PlanReviewFailure    string `json:"planReviewFailure,omitempty"`
}

// WorkflowResult summarizes a finished workflow.
type WorkflowResult struct {
	Success        bool   `json:"success"`
	Summary        string `json:"summary,omitempty"`
	Score          int    `json:"score"`
	TasksCompleted int    `json:"tasksCompleted"`
	TasksFailed    int    `json:"tasksFailed"`
	TasksPending   int    `json:"tasksPending"`
	Error          string `json:"error,omitempty"`
}

// Workflow is the single live run in the process.
type Workflow struct {
	Active        bool            `json:"active"`
	Name          string          `json:"name"`
	Goal          string          `json:"goal"`
	StartTime     time.Time       `json:"startTime"`
	Configuration WorkflowConfig  `json:"configuration"`
	Status        WorkflowStatus  `json:"status,omitempty"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	Result        *WorkflowResult `json:"result,omitempty"`
	CurrentPhase  Phase           `json:"currentPhase,omitempty"`
}

// Resumable reports whether w describes an unfinished run.
func (w *Workflow) Resumable() bool {
	return w != nil && (w.Active || w.Status.Resumable())
}

// InvocationStatus is the outcome of one executor attempt.
type InvocationStatus string

// Invocation statuses.
const (
	InvocationSuccess InvocationStatus = "success"
	InvocationError   InvocationStatus = "error"
)

// ToolCall is one tool use reported by the executor.
type ToolCall struct {
	Name  string `json:"name"`
	Input string `json:"input,omitempty"`
}

// Invocation is the audit record of one executor attempt.
type Invocation struct {
	ID            string           `json:"id"`
	AgentName     string           `json:"agentName"`
	Model         string           `json:"model"`
	Prompt        string           `json:"prompt"`
	Response      string           `json:"response"`
	ToolCalls     []ToolCall       `json:"toolCalls,omitempty"`
	SessionID     string           `json:"sessionId,omitempty"`
	Attempt       int              `json:"attempt"`
	CostUSD       float64          `json:"costUsd"`
	TokensIn      int              `json:"tokensIn"`
	TokensOut     int              `json:"tokensOut"`
	DurationMS    int64            `json:"durationMs"`
	Status        InvocationStatus `json:"status"`
	ErrorCategory string           `json:"errorCategory,omitempty"`
	Error         string           `json:"error,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// FailurePattern remembers how a task failed and, once known, how it was resolved.
type FailurePattern struct {
	TaskDescription string         `json:"taskDescription"`
	FailurePattern  string         `json:"failurePattern"`
	Resolution      string         `json:"resolution,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// RegisterOptions configures a new agent.
type RegisterOptions struct {
	Role          Role
	Model         string
	FallbackModel string
	SubscribesTo  []string
	Tools         []string

	// AllowExisting returns the already registered agent instead of failing.
	AllowExisting bool
}

// ResetCounts reports what ResetFailedTasks changed.
type ResetCounts struct {
	Failed          int `json:"failed"`
	InProgress      int `json:"inProgress"`
	OrphanedBlocked int `json:"orphanedBlocked"`
}

// Total returns the number of reset tasks.
func (c ResetCounts) Total() int {
	return c.Failed + c.InProgress + c.OrphanedBlocked
}
