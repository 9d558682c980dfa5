package agents

import "github.com/fyrsmithlabs/conductor/internal/state"

// Team is the full set of agents for one run.
type Team struct {
	Planner    *Planner
	Coder      *Coder
	Tester     *Tester
	Supervisor *Supervisor

	unsubscribe []func()
}

// NewTeam builds the four agents over shared dependencies.
func NewTeam(d Deps) *Team {
	return &Team{
		Planner:    NewPlanner(d),
		Coder:      NewCoder(d),
		Tester:     NewTester(d),
		Supervisor: NewSupervisor(d),
	}
}

func (t *Team) members() []*base {
	return []*base{&t.Planner.base, &t.Coder.base, &t.Tester.base, &t.Supervisor.base}
}

// Names returns the agent names in registration order.
func (t *Team) Names() []string {
	var names []string
	for _, m := range t.members() {
		names = append(names, m.name)
	}
	return names
}

// Register adds every agent to the store. Agents already present, as after
// loading a snapshot, are kept. Subscriptions are made once.
func (t *Team) Register() error {
	for _, m := range t.members() {
		if err := m.register(); err != nil {
			return err
		}
	}
	if t.unsubscribe == nil {
		for _, m := range t.members() {
			t.unsubscribe = append(t.unsubscribe, m.subscribe())
		}
	}
	return nil
}

// Close drops the team's subscriptions.
func (t *Team) Close() {
	for _, u := range t.unsubscribe {
		u()
	}
	t.unsubscribe = nil
}

// Store exposes the store the team writes to.
func (t *Team) Store() *state.Store {
	return t.Planner.store
}
