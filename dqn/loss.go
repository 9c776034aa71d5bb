package dqn

import (
	"fmt"
	"math"

	"github.com/zeu5/lattice-fold-rl/replay"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LossResult of a single TD loss computation
type LossResult struct {
	// importance weighted mean squared TD error
	Loss float64
	// squared error + replay.PriorityEpsilon, one per sample
	Priorities []float64
	// Q(s,a) - y, one per sample
	TDErrors []float64
	Targets  []float64
	// derivative of Loss with respect to the online estimator output
	// non zero only at the taken actions
	OutputGrad *mat.Dense
}

// TDLoss computes the one step DQN loss with a max over the target estimator
type TDLoss struct {
	Gamma float64
}

// Compute the loss of the batch. Does not modify the estimators or the batch.
func (l TDLoss) Compute(batch *replay.Batch, online, target Estimator) (*LossResult, error) {
	n := batch.Size()
	if n == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	qValues, err := online.Evaluate(batch.States)
	if err != nil {
		return nil, fmt.Errorf("evaluating online estimator: %w", err)
	}
	if err := checkOutput(qValues, n); err != nil {
		return nil, err
	}
	nextValues, err := target.Evaluate(batch.NextStates)
	if err != nil {
		return nil, fmt.Errorf("evaluating target estimator: %w", err)
	}
	if err := checkOutput(nextValues, n); err != nil {
		return nil, err
	}
	_, actions := qValues.Dims()

	result := &LossResult{
		Priorities: make([]float64, n),
		TDErrors:   make([]float64, n),
		Targets:    make([]float64, n),
		OutputGrad: mat.NewDense(n, actions, nil),
	}

	weightedSum := 0.0
	for i := 0; i < n; i++ {
		a := batch.Actions[i]
		if a < 0 || a >= actions {
			return nil, fmt.Errorf("action %d out of range for %d estimator outputs", a, actions)
		}
		q := qValues.At(i, a)
		bootstrap := floats.Max(nextValues.RawRowView(i))
		y := batch.Rewards[i] + l.Gamma*bootstrap*(1-batch.Dones[i])

		diff := q - y
		squared := diff * diff
		weightedSum += squared * batch.Weights[i]

		result.TDErrors[i] = diff
		result.Targets[i] = y
		result.Priorities[i] = squared + replay.PriorityEpsilon
		result.OutputGrad.Set(i, a, 2*batch.Weights[i]*diff/float64(n))
	}
	result.Loss = weightedSum / float64(n)
	return result, nil
}

func checkOutput(out *mat.Dense, rows int) error {
	r, c := out.Dims()
	if r != rows || c == 0 {
		return fmt.Errorf("%w: got %dx%d for %d states", ErrInvalidEstimatorOutput, r, c, rows)
	}
	for i := 0; i < r; i++ {
		for _, v := range out.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non finite value in row %d", ErrInvalidEstimatorOutput, i)
			}
		}
	}
	return nil
}
