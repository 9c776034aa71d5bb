package types

import (
	"time"

	"golang.org/x/exp/rand"
)

type Policy interface {
	// called at the end of each episode with the complete trace
	UpdateIteration(int, *Trace)
	// step, current state, number of available actions
	NextAction(int, *Observation, int) (int, error)
	// step, state, action taken, outcome of the action
	Update(int, *Observation, int, StepResult) error
	Reset()
}

type RandomPolicy struct {
	rand *rand.Rand
}

var _ Policy = &RandomPolicy{}

func NewRandomPolicy() *RandomPolicy {
	return NewRandomPolicyWithSeed(uint64(time.Now().UnixNano()))
}

func NewRandomPolicyWithSeed(seed uint64) *RandomPolicy {
	return &RandomPolicy{
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomPolicy) Reset() {

}

func (r *RandomPolicy) UpdateIteration(_ int, _ *Trace) {

}

func (r *RandomPolicy) NextAction(step int, state *Observation, actions int) (int, error) {
	return r.rand.Intn(actions), nil
}

func (r *RandomPolicy) Update(_ int, _ *Observation, _ int, _ StepResult) error { return nil }
