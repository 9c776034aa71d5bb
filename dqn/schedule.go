package dqn

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidScheduleParameter is returned for a non positive decay or frame count
var ErrInvalidScheduleParameter = errors.New("invalid schedule parameter")

// Epsilon decays exponentially from start towards final
func Epsilon(t int, start, final, decay float64) float64 {
	return final + (start-final)*math.Exp(-float64(t)/decay)
}

// Beta grows linearly from start to 1 over frames steps and stays at 1 afterwards
func Beta(t int, start float64, frames int) float64 {
	if t >= frames {
		return 1.0
	}
	return math.Min(1.0, start+float64(t)*(1.0-start)/float64(frames))
}

// EpsilonSchedule is the exploration rate as a function of environment steps
type EpsilonSchedule struct {
	Start float64
	Final float64
	Decay float64
}

// NewEpsilonSchedule rejects a non positive decay
func NewEpsilonSchedule(start, final, decay float64) (EpsilonSchedule, error) {
	if decay <= 0 {
		return EpsilonSchedule{}, fmt.Errorf("%w: epsilon decay must be positive, got %f", ErrInvalidScheduleParameter, decay)
	}
	return EpsilonSchedule{Start: start, Final: final, Decay: decay}, nil
}

// Value at step t
func (s EpsilonSchedule) Value(t int) float64 {
	return Epsilon(t, s.Start, s.Final, s.Decay)
}

// BetaSchedule is the importance sampling exponent as a function of environment steps
type BetaSchedule struct {
	Start  float64
	Frames int
}

// NewBetaSchedule rejects a non positive frame count
func NewBetaSchedule(start float64, frames int) (BetaSchedule, error) {
	if frames <= 0 {
		return BetaSchedule{}, fmt.Errorf("%w: beta frames must be positive, got %d", ErrInvalidScheduleParameter, frames)
	}
	return BetaSchedule{Start: start, Frames: frames}, nil
}

// Value at step t, never above 1
func (s BetaSchedule) Value(t int) float64 {
	return Beta(t, s.Start, s.Frames)
}
