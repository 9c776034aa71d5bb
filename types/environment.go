package types

import "fmt"

// Observation is a dense tensor with an explicit shape
// Data is stored in row-major order
type Observation struct {
	Shape []int
	Data  []float64
}

// NewObservation creates an observation, panics if the shape does not cover the data
func NewObservation(shape []int, data []float64) *Observation {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(data) {
		panic(fmt.Sprintf("observation shape %v does not match data length %d", shape, len(data)))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Observation{
		Shape: s,
		Data:  data,
	}
}

// Size of the flattened observation
func (o *Observation) Size() int {
	return len(o.Data)
}

// SameShape returns true if both observations have the same rank and dimensions
func (o *Observation) SameShape(other *Observation) bool {
	if o == nil || other == nil {
		return false
	}
	if len(o.Shape) != len(other.Shape) {
		return false
	}
	for i := range o.Shape {
		if o.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy
func (o *Observation) Copy() *Observation {
	data := make([]float64, len(o.Data))
	copy(data, o.Data)
	return NewObservation(o.Shape, data)
}

// StepResult is what the environment returns for a single action
type StepResult struct {
	Next   *Observation
	Reward float64
	Done   bool
	Info   map[string]interface{}
}

// Environment that the agent interacts with, one step at a time
type Environment interface {
	// Reset called at the beginning of each episode
	Reset() (*Observation, error)
	// Step applies the action and returns the outcome
	Step(int) (StepResult, error)
	// ActionSpaceSize number of discrete actions, actions are 0..n-1
	ActionSpaceSize() int
	// ObservationShape shape of the observations returned by Reset and Step
	ObservationShape() []int
}
