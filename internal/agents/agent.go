// Package agents implements the four worker roles over an executor.
//
// Every agent is registered in the state store under its role name and owns
// its slice of state there: the planner owns goals and tasks, the coder and
// tester their outputs, the supervisor its verdict history. Agent responses
// are read as structured JSON first; when a response carries none, the text
// is parsed with the fallback rules in internal/decision.
//
// Agents learn about each other only through SubscribeToAgents. Peer task
// and output events are kept as interactions.
package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

// similarFailureHints bounds the failure patterns quoted in a prompt.
const similarFailureHints = 3

// Deps are the collaborators shared by every agent.
type Deps struct {
	Store    *state.Store
	Executor executor.Executor
	Config   *config.Config
	Logger   *logging.Logger
}

type base struct {
	name   string
	role   state.Role
	store  *state.Store
	exec   executor.Executor
	cfg    config.AgentConfig
	logger *logging.Logger
}

func newBase(d Deps, role state.Role) base {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	name := string(role)
	return base{
		name:   name,
		role:   role,
		store:  d.Store,
		exec:   d.Executor,
		cfg:    cfg.Agent(name),
		logger: logger.Named(name),
	}
}

// Name returns the agent's store name.
func (b *base) Name() string {
	return b.name
}

func (b *base) register() error {
	_, err := b.store.RegisterAgent(b.name, state.RegisterOptions{
		Role:          b.role,
		Model:         b.cfg.Model,
		FallbackModel: b.cfg.FallbackModel,
		SubscribesTo:  b.cfg.SubscribesTo,
		Tools:         b.cfg.Tools,
		AllowExisting: true,
	})
	return err
}

func (b *base) subscribe() func() {
	return b.store.SubscribeToAgents(b.name, b.cfg.SubscribesTo, b.observe)
}

// observe keeps peer task and output events as interactions. Everything
// else, including memory and interaction events, is ignored.
func (b *base) observe(e state.Event) {
	if e.Source == b.name || e.Source == state.CoreSource {
		return
	}
	var kind, summary string
	switch p := e.Payload.(type) {
	case state.TaskPayload:
		switch e.Kind {
		case state.EventTaskAdded, state.EventTaskCompleted, state.EventTaskFailed:
			kind, summary = string(e.Kind), p.Task.Description
		default:
			return
		}
	case state.OutputPayload:
		kind, summary = string(e.Kind), firstLine(p.Output.Content)
	default:
		return
	}
	if err := b.store.RecordInteraction(b.name, state.Interaction{With: e.Source, Kind: kind, Summary: summary}); err != nil {
		b.logger.Warn(context.Background(), "interaction not recorded",
			zap.String("from", e.Source),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (b *base) ask(ctx context.Context, prompt string) (*executor.Result, error) {
	res, err := b.exec.Execute(logging.WithAgent(ctx, b.name), b.name, prompt, executor.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	return res, nil
}

func (b *base) current() state.AgentState {
	a, err := b.store.Agent(b.name)
	if err != nil {
		return state.NewAgentState(b.role)
	}
	return a.State.Clone()
}

func (b *base) remember(kind, content string) {
	if err := b.store.AddMemory(b.name, state.MemoryEntry{Kind: kind, Content: content, Source: b.name}); err != nil {
		b.logger.Warn(context.Background(), "memory not recorded", zap.String("kind", kind), zap.Error(err))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	const limit = 200
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
