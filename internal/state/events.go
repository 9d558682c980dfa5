package state

import (
	"encoding/json"
	"time"
)

// EventKind names a state change. The set is closed.
type EventKind string

// Event kinds.
const (
	EventAgentRegistered        EventKind = "agent_registered"
	EventAgentStateChanged      EventKind = "agent_state_changed"
	EventGoalSet                EventKind = "goal_set"
	EventGoalUpdated            EventKind = "goal_updated"
	EventTaskAdded              EventKind = "task_added"
	EventTaskUpdated            EventKind = "task_updated"
	EventTaskCompleted          EventKind = "task_completed"
	EventTaskFailed             EventKind = "task_failed"
	EventTasksRemoved           EventKind = "tasks_removed"
	EventMemoryAdded            EventKind = "memory_added"
	EventOutputAdded            EventKind = "output_added"
	EventInteractionRecorded    EventKind = "interaction_recorded"
	EventInvocationRecorded     EventKind = "invocation_recorded"
	EventFailurePatternRecorded EventKind = "failure_pattern_recorded"
	EventWorkflowStarted        EventKind = "workflow_started"
	EventWorkflowCompleted      EventKind = "workflow_completed"
	EventPhaseChanged           EventKind = "phase_changed"
	EventStateLoaded            EventKind = "state_loaded"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventAgentRegistered,
	EventAgentStateChanged,
	EventGoalSet,
	EventGoalUpdated,
	EventTaskAdded,
	EventTaskUpdated,
	EventTaskCompleted,
	EventTaskFailed,
	EventTasksRemoved,
	EventMemoryAdded,
	EventOutputAdded,
	EventInteractionRecorded,
	EventInvocationRecorded,
	EventFailurePatternRecorded,
	EventWorkflowStarted,
	EventWorkflowCompleted,
	EventPhaseChanged,
	EventStateLoaded,
}

// Valid reports whether k belongs to the closed set.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ChangeType classifies a mutation.
type ChangeType string

// Change types.
const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Payload is the kind-specific body of an Event.
type Payload interface {
	payload()
}

// AgentPayload accompanies EventAgentRegistered.
type AgentPayload struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Model string `json:"model"`
}

// StateChangePayload accompanies EventAgentStateChanged.
type StateChangePayload struct {
	Old AgentState `json:"old"`
	New AgentState `json:"new"`
}

// GoalPayload accompanies goal events.
type GoalPayload struct {
	Goal Goal `json:"goal"`
}

// TaskPayload accompanies task events.
type TaskPayload struct {
	Task           Task       `json:"task"`
	PreviousStatus TaskStatus `json:"previousStatus,omitempty"`
}

// TasksRemovedPayload accompanies EventTasksRemoved.
type TasksRemovedPayload struct {
	GoalID  string   `json:"goalId"`
	Reason  string   `json:"reason"`
	TaskIDs []string `json:"taskIds"`
}

// MemoryPayload accompanies EventMemoryAdded.
type MemoryPayload struct {
	Entry MemoryEntry `json:"entry"`
}

// OutputPayload accompanies EventOutputAdded.
type OutputPayload struct {
	Output Output `json:"output"`
}

// InteractionPayload accompanies EventInteractionRecorded.
type InteractionPayload struct {
	Interaction Interaction `json:"interaction"`
}

// InvocationPayload accompanies EventInvocationRecorded.
type InvocationPayload struct {
	Invocation Invocation `json:"invocation"`
}

// FailurePatternPayload accompanies EventFailurePatternRecorded.
type FailurePatternPayload struct {
	Pattern FailurePattern `json:"pattern"`
}

// WorkflowPayload accompanies workflow events.
type WorkflowPayload struct {
	Workflow Workflow `json:"workflow"`
}

// PhasePayload accompanies EventPhaseChanged.
type PhasePayload struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// LoadedPayload accompanies EventStateLoaded.
type LoadedPayload struct {
	Agents    int       `json:"agents"`
	SavedAt   time.Time `json:"savedAt"`
	LastPhase Phase     `json:"lastPhase,omitempty"`
}

// RawPayload is the undecoded body of an event read back from a snapshot.
type RawPayload json.RawMessage

// MarshalJSON returns the raw bytes.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (AgentPayload) payload()          {}
func (StateChangePayload) payload()    {}
func (GoalPayload) payload()           {}
func (TaskPayload) payload()           {}
func (TasksRemovedPayload) payload()   {}
func (MemoryPayload) payload()         {}
func (OutputPayload) payload()         {}
func (InteractionPayload) payload()    {}
func (InvocationPayload) payload()     {}
func (FailurePatternPayload) payload() {}
func (WorkflowPayload) payload()       {}
func (PhasePayload) payload()          {}
func (LoadedPayload) payload()         {}
func (RawPayload) payload()            {}

// Event is an immutable record of one mutation.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Timestamp  time.Time   `json:"timestamp"`
	Source     string      `json:"source"`
	ChangeType ChangeType  `json:"changeType"`
	Payload    Payload     `json:"payload"`
	AgentState *AgentState `json:"agentState,omitempty"`
}

// UnmarshalJSON keeps the payload as RawPayload since its concrete type is
// not recorded on the wire.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind       EventKind       `json:"kind"`
		Timestamp  time.Time       `json:"timestamp"`
		Source     string          `json:"source"`
		ChangeType ChangeType      `json:"changeType"`
		Payload    json.RawMessage `json:"payload"`
		AgentState *AgentState     `json:"agentState,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Event{
		Kind:       wire.Kind,
		Timestamp:  wire.Timestamp,
		Source:     wire.Source,
		ChangeType: wire.ChangeType,
		AgentState: wire.AgentState,
	}
	if len(wire.Payload) > 0 && string(wire.Payload) != "null" {
		e.Payload = RawPayload(wire.Payload)
	}
	return nil
}

// Handler receives events synchronously.
type Handler func(Event)
