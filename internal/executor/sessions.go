package executor

import (
	"maps"
	"sync"
)

// Sessions maps agents to their conversation ids so later prompts continue
// the same conversation. It survives restarts through the snapshot.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]string
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]string)}
}

// Get returns the agent's session id.
func (s *Sessions) Get(agent string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[agent]
}

// Set records the agent's session id. An empty id clears it.
func (s *Sessions) Set(agent, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		delete(s.byID, agent)
		return
	}
	s.byID[agent] = sessionID
}

// Sessions returns a copy of every session id.
func (s *Sessions) Sessions() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byID)
}

// RestoreSessions replaces the registry with saved ids.
func (s *Sessions) RestoreSessions(saved map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]string, len(saved))
	for agent, id := range saved {
		if id != "" {
			s.byID[agent] = id
		}
	}
}
