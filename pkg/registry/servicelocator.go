package registry

import "fmt"

// Agent is the user-written callback invoked by the worker pool for each
// queued turn. It is defined here rather than in pkg/workqueue so the
// locator can be typed without an import cycle.
type Agent interface {
	OnTurn(turnContext any) error
}

// ServiceLocator resolves an Agent instance by agentType for the worker
// pool. Backing it with Registry[Agent] allows transient agents: callers
// may register a factory-backed Agent wrapper that builds a fresh
// instance per Get if they need per-turn state.
type ServiceLocator struct {
	agents Registry[Agent]
}

// NewServiceLocator builds a ServiceLocator over an empty registry.
func NewServiceLocator() *ServiceLocator {
	return &ServiceLocator{agents: NewBaseRegistry[Agent]()}
}

// RegisterAgent makes agent resolvable under agentType.
func (s *ServiceLocator) RegisterAgent(agentType string, agent Agent) error {
	return s.agents.Register(agentType, agent)
}

// Resolve returns the Agent registered under agentType.
func (s *ServiceLocator) Resolve(agentType string) (Agent, error) {
	agent, ok := s.agents.Get(agentType)
	if !ok {
		return nil, fmt.Errorf("registry: no agent registered for type %q", agentType)
	}
	return agent, nil
}
