package dqn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidEstimatorOutput is returned when an estimator produces values of the wrong shape or non finite values
	ErrInvalidEstimatorOutput = errors.New("invalid estimator output")
	// ErrParameterMismatch is returned when two estimators do not share a parameter layout
	ErrParameterMismatch = errors.New("estimator parameter mismatch")
)

// Estimator maps a batch of flattened states (one per row) to per action values (one row per state).
// Parameters returns the live parameter matrices, in a stable order.
type Estimator interface {
	Evaluate(states *mat.Dense) (*mat.Dense, error)
	Parameters() []*mat.Dense
	// Gradients of sum_ij outputGrad[i][j] * Q(states)[i][j] with respect to each parameter,
	// in the same order as Parameters
	Gradients(states, outputGrad *mat.Dense) ([]*mat.Dense, error)
}

// Optimizer applies one gradient step to the parameters
type Optimizer interface {
	Step(params, grads []*mat.Dense) error
}

// Snapshot copies the parameters of the estimator
func Snapshot(e Estimator) []*mat.Dense {
	params := e.Parameters()
	snap := make([]*mat.Dense, len(params))
	for i, p := range params {
		snap[i] = mat.DenseCopyOf(p)
	}
	return snap
}

// Restore overwrites the estimator parameters with the snapshot
func Restore(e Estimator, snap []*mat.Dense) error {
	params := e.Parameters()
	if err := checkLayout(params, snap); err != nil {
		return err
	}
	for i, p := range params {
		p.Copy(snap[i])
	}
	return nil
}

func checkLayout(a, b []*mat.Dense) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d parameters", ErrParameterMismatch, len(a), len(b))
	}
	for i := range a {
		ar, ac := a[i].Dims()
		br, bc := b[i].Dims()
		if ar != br || ac != bc {
			return fmt.Errorf("%w: parameter %d is %dx%d vs %dx%d", ErrParameterMismatch, i, ar, ac, br, bc)
		}
	}
	return nil
}
