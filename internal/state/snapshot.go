package state

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the persisted form of a Store.
type Snapshot struct {
	Version          string            `json:"version"`
	Timestamp        time.Time         `json:"timestamp"`
	Agents           []*Agent          `json:"agents"`
	Workflow         *Workflow         `json:"workflow,omitempty"`
	Invocations      []Invocation      `json:"invocations"`
	FailurePatterns  []FailurePattern  `json:"failurePatterns"`
	EventLog         []Event           `json:"eventLog"`
	ExecutorSessions map[string]string `json:"executorSessions,omitempty"`
	CurrentPhase     Phase             `json:"currentPhase,omitempty"`
}

// SnapshotOption adds collaborator state to a snapshot.
type SnapshotOption func(*Snapshot)

// WithExecutorSessions records per-agent executor session ids.
func WithExecutorSessions(sessions map[string]string) SnapshotOption {
	return func(snap *Snapshot) {
		if len(sessions) > 0 {
			snap.ExecutorSessions = maps.Clone(sessions)
		}
	}
}

// WithPhase records the orchestrator's phase when it differs from the
// workflow's own record.
func WithPhase(p Phase) SnapshotOption {
	return func(snap *Snapshot) {
		snap.CurrentPhase = p
	}
}

// Capture builds a Snapshot of the live state without writing it.
func (s *Store) Capture(opts ...SnapshotOption) *Snapshot {
	snap := &Snapshot{
		Version:         SnapshotVersion,
		Timestamp:       s.now(),
		Agents:          s.Agents(),
		Invocations:     s.invocations.Items(),
		FailurePatterns: s.failurePatterns.Items(),
		EventLog:        s.events.Last(SnapshotEventLimit),
	}
	if s.workflow != nil {
		w := *s.workflow
		snap.Workflow = &w
		snap.CurrentPhase = w.CurrentPhase
	}
	for _, opt := range opts {
		opt(snap)
	}
	return snap
}

// Snapshot atomically writes the live state through the gateway.
func (s *Store) Snapshot(ctx context.Context, opts ...SnapshotOption) error {
	if s.gateway == nil {
		return ErrNoPersistence
	}
	snap := s.Capture(opts...)
	if err := s.gateway.Save(ctx, snap); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the live state with the persisted one. A missing or
// corrupt file yields (nil, nil) and leaves the live state alone.
func (s *Store) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if s.gateway == nil {
		return nil, ErrNoPersistence
	}
	var snap Snapshot
	if !s.gateway.Load(ctx, &snap) {
		return nil, nil
	}

	s.Reset()
	for _, a := range snap.Agents {
		if a == nil || a.Name == "" {
			continue
		}
		a.normalize()
		s.agents[a.Name] = a
		s.order = append(s.order, a.Name)
	}
	if snap.Workflow != nil {
		w := *snap.Workflow
		if w.CurrentPhase == PhaseIdle {
			w.CurrentPhase = snap.CurrentPhase
		}
		s.workflow = &w
	}
	for _, inv := range snap.Invocations {
		s.invocations.Push(inv)
	}
	for _, fp := range snap.FailurePatterns {
		s.failurePatterns.Push(fp)
	}
	for _, e := range snap.EventLog {
		s.events.Push(e)
	}

	s.logger.Info(ctx, "state loaded",
		zap.Int("agents", len(s.order)),
		zap.Time("saved_at", snap.Timestamp),
		zap.String("phase", string(snap.CurrentPhase)),
	)
	s.emit(EventStateLoaded, CoreSource, ChangeModified, LoadedPayload{
		Agents:    len(s.order),
		SavedAt:   snap.Timestamp,
		LastPhase: snap.CurrentPhase,
	})
	return &snap, nil
}

// TaskCounts tallies tasks by status.
type TaskCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
}

// Total returns the number of counted tasks.
func (c TaskCounts) Total() int {
	return c.Pending + c.InProgress + c.Completed + c.Failed + c.Blocked
}

// Add counts one task.
func (c *TaskCounts) Add(status TaskStatus) {
	switch status {
	case TaskPending:
		c.Pending++
	case TaskInProgress:
		c.InProgress++
	case TaskCompleted:
		c.Completed++
	case TaskFailed:
		c.Failed++
	case TaskBlocked:
		c.Blocked++
	}
}

// Resumable reports whether snap holds an unfinished run: a resumable
// workflow, or no workflow record but tasks that are not completed.
func (snap *Snapshot) Resumable() bool {
	if snap == nil {
		return false
	}
	if snap.Workflow != nil {
		return snap.Workflow.Resumable()
	}
	for _, a := range snap.Agents {
		if a == nil {
			continue
		}
		for _, t := range a.Tasks {
			if t.Status != TaskCompleted {
				return true
			}
		}
	}
	return false
}

// ResumeInfo describes a persisted run.
type ResumeInfo struct {
	Resumable    bool           `json:"resumable"`
	SavedAt      time.Time      `json:"savedAt"`
	WorkflowName string         `json:"workflowName,omitempty"`
	Goal         string         `json:"goal,omitempty"`
	Status       WorkflowStatus `json:"status,omitempty"`
	Phase        Phase          `json:"phase,omitempty"`
	Agents       []string       `json:"agents"`
	Tasks        TaskCounts     `json:"tasks"`
	Invocations  int            `json:"invocations"`
	CostUSD      float64        `json:"costUsd"`
}

// ResumeInfo reads the persisted file without touching live state. It
// reports false when there is no readable snapshot.
func (s *Store) ResumeInfo(ctx context.Context) (ResumeInfo, bool) {
	if s.gateway == nil {
		return ResumeInfo{}, false
	}
	var snap Snapshot
	if !s.gateway.Load(ctx, &snap) {
		return ResumeInfo{}, false
	}

	info := ResumeInfo{
		Resumable:   snap.Resumable(),
		SavedAt:     snap.Timestamp,
		Phase:       snap.CurrentPhase,
		Agents:      []string{},
		Invocations: len(snap.Invocations),
	}
	if snap.Workflow != nil {
		info.WorkflowName = snap.Workflow.Name
		info.Goal = snap.Workflow.Goal
		info.Status = snap.Workflow.Status
		if info.Phase == PhaseIdle {
			info.Phase = snap.Workflow.CurrentPhase
		}
	}
	for _, a := range snap.Agents {
		if a == nil {
			continue
		}
		info.Agents = append(info.Agents, a.Name)
		for _, t := range a.Tasks {
			info.Tasks.Add(t.Status)
		}
	}
	for _, inv := range snap.Invocations {
		info.CostUSD += inv.CostUSD
	}
	return info, true
}

// CanResume reports whether the persisted file holds an unfinished workflow.
func (s *Store) CanResume(ctx context.Context) bool {
	info, ok := s.ResumeInfo(ctx)
	return ok && info.Resumable
}
