package types

import (
	"context"
	"fmt"
)

type AgentConfig struct {
	Episodes    int
	Horizon     int
	Policy      Policy
	Environment Environment
}

// RL Agent configured with the corresponding
// policy and environment
type Agent struct {
	config      *AgentConfig
	policy      Policy
	environment Environment
}

// Instantiates a new Agent
func NewAgent(config *AgentConfig) *Agent {
	return &Agent{
		config:      config,
		policy:      config.Policy,
		environment: config.Environment,
	}
}

// Run the agent for the specified number of episodes, returns the traces
func (a *Agent) Run(ctx context.Context) ([]*Trace, error) {
	traces := make([]*Trace, 0, a.config.Episodes)
	for i := 0; i < a.config.Episodes; i++ {
		trace, err := a.RunEpisode(ctx, i)
		if err != nil {
			return traces, err
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

// RunEpisode runs a single episode until the environment is done or the horizon is reached
// The trace collected so far is returned along with any error
func (a *Agent) RunEpisode(ctx context.Context, episode int) (*Trace, error) {
	trace := NewTrace()
	state, err := a.environment.Reset()
	if err != nil {
		return trace, fmt.Errorf("reset: %w", err)
	}
	actions := a.environment.ActionSpaceSize()

	for i := 0; a.config.Horizon <= 0 || i < a.config.Horizon; i++ {
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		default:
		}

		action, err := a.policy.NextAction(i, state, actions)
		if err != nil {
			return trace, fmt.Errorf("step %d: next action: %w", i, err)
		}
		result, err := a.environment.Step(action)
		if err != nil {
			return trace, fmt.Errorf("step %d: %w", i, err)
		}
		if err := a.policy.Update(i, state, action, result); err != nil {
			return trace, fmt.Errorf("step %d: update: %w", i, err)
		}

		trace.Append(state, action, result)
		state = result.Next
		if result.Done {
			break
		}
	}
	a.policy.UpdateIteration(episode, trace)

	return trace, nil
}
