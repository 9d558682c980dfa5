package state

import "maps"

// AgentState is the role-specific state of an agent. Exactly one variant
// matching Role is populated; Metadata carries extension fields.
type AgentState struct {
	Role       Role             `json:"role"`
	Planner    *PlannerState    `json:"planner,omitempty"`
	Coder      *CoderState      `json:"coder,omitempty"`
	Tester     *TesterState     `json:"tester,omitempty"`
	Supervisor *SupervisorState `json:"supervisor,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// PlannerState tracks planning activity.
type PlannerState struct {
	PlansCreated   int    `json:"plansCreated"`
	Replans        int    `json:"replans"`
	CurrentGoalID  string `json:"currentGoalId,omitempty"`
	TasksPlanned   int    `json:"tasksPlanned"`
	FailedAttempts int    `json:"failedAttempts"`
}

// CoderState tracks implementation activity.
type CoderState struct {
	TasksImplemented int      `json:"tasksImplemented"`
	FixesApplied     int      `json:"fixesApplied"`
	Blocked          int      `json:"blocked"`
	CurrentTaskID    string   `json:"currentTaskId,omitempty"`
	FilesModified    []string `json:"filesModified,omitempty"`
}

// TesterState tracks test activity.
type TesterState struct {
	Reports     int `json:"reports"`
	TestsRun    int `json:"testsRun"`
	TestsPassed int `json:"testsPassed"`
	TestsFailed int `json:"testsFailed"`
}

// PassRate returns the share of passed tests, or zero when nothing ran.
func (t TesterState) PassRate() float64 {
	if t.TestsRun == 0 {
		return 0
	}
	return float64(t.TestsPassed) / float64(t.TestsRun)
}

// SupervisorState tracks review activity.
type SupervisorState struct {
	Reviews       int    `json:"reviews"`
	Approvals     int    `json:"approvals"`
	Rejections    int    `json:"rejections"`
	LastScore     int    `json:"lastScore"`
	Escalation    string `json:"escalation,omitempty"`
	LastDiagnosis string `json:"lastDiagnosis,omitempty"`
}

// NewAgentState returns the zero state for role.
func NewAgentState(role Role) AgentState {
	s := AgentState{Role: role, Metadata: map[string]any{}}
	switch role {
	case RolePlanner:
		s.Planner = &PlannerState{}
	case RoleCoder:
		s.Coder = &CoderState{}
	case RoleTester:
		s.Tester = &TesterState{}
	case RoleSupervisor:
		s.Supervisor = &SupervisorState{}
	}
	return s
}

// Clone returns a deep copy of s.
func (s AgentState) Clone() AgentState {
	c := AgentState{Role: s.Role, Metadata: maps.Clone(s.Metadata)}
	if s.Planner != nil {
		v := *s.Planner
		c.Planner = &v
	}
	if s.Coder != nil {
		v := *s.Coder
		v.FilesModified = append([]string(nil), s.Coder.FilesModified...)
		c.Coder = &v
	}
	if s.Tester != nil {
		v := *s.Tester
		c.Tester = &v
	}
	if s.Supervisor != nil {
		v := *s.Supervisor
		c.Supervisor = &v
	}
	return c
}

// StateUpdate is a shallow merge into AgentState. Each non-nil variant
// replaces the stored variant as a whole. Metadata keys are merged and a nil
// value deletes the key.
type StateUpdate struct {
	Planner    *PlannerState
	Coder      *CoderState
	Tester     *TesterState
	Supervisor *SupervisorState
	Metadata   map[string]any
}

func (u StateUpdate) applyTo(s *AgentState) {
	if u.Planner != nil {
		v := *u.Planner
		s.Planner = &v
	}
	if u.Coder != nil {
		v := *u.Coder
		v.FilesModified = append([]string(nil), u.Coder.FilesModified...)
		s.Coder = &v
	}
	if u.Tester != nil {
		v := *u.Tester
		s.Tester = &v
	}
	if u.Supervisor != nil {
		v := *u.Supervisor
		s.Supervisor = &v
	}
	if len(u.Metadata) > 0 && s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	for k, v := range u.Metadata {
		if v == nil {
			delete(s.Metadata, k)
			continue
		}
		s.Metadata[k] = v
	}
}
