package dqn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// linear estimator Q = X W + b used across the package tests
type linearEstimator struct {
	w *mat.Dense
	b *mat.Dense
}

func newLinearEstimator(inputs, actions int, init float64) *linearEstimator {
	w := mat.NewDense(inputs, actions, nil)
	for i := 0; i < inputs; i++ {
		for j := 0; j < actions; j++ {
			w.Set(i, j, init*float64(i+1)-0.1*float64(j))
		}
	}
	return &linearEstimator{w: w, b: mat.NewDense(1, actions, nil)}
}

func (l *linearEstimator) Evaluate(states *mat.Dense) (*mat.Dense, error) {
	r, c := states.Dims()
	wr, wc := l.w.Dims()
	if c != wr {
		return nil, fmt.Errorf("expected %d inputs, got %d", wr, c)
	}
	out := mat.NewDense(r, wc, nil)
	out.Mul(states, l.w)
	for i := 0; i < r; i++ {
		for j := 0; j < wc; j++ {
			out.Set(i, j, out.At(i, j)+l.b.At(0, j))
		}
	}
	return out, nil
}

func (l *linearEstimator) Parameters() []*mat.Dense {
	return []*mat.Dense{l.w, l.b}
}

func (l *linearEstimator) Gradients(states, outputGrad *mat.Dense) ([]*mat.Dense, error) {
	wr, wc := l.w.Dims()
	dw := mat.NewDense(wr, wc, nil)
	dw.Mul(states.T(), outputGrad)
	db := mat.NewDense(1, wc, nil)
	r, _ := outputGrad.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < wc; j++ {
			db.Set(0, j, db.At(0, j)+outputGrad.At(i, j))
		}
	}
	return []*mat.Dense{dw, db}, nil
}

// plain gradient descent
type sgd struct {
	rate float64
}

func (s sgd) Step(params, grads []*mat.Dense) error {
	for i, p := range params {
		var step mat.Dense
		step.Scale(s.rate, grads[i])
		p.Sub(p, &step)
	}
	return nil
}

// constant estimator returning fixed values for any state
type constEstimator struct {
	values []float64
}

func (c constEstimator) Evaluate(states *mat.Dense) (*mat.Dense, error) {
	r, _ := states.Dims()
	out := mat.NewDense(r, len(c.values), nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, c.values)
	}
	return out, nil
}

func (c constEstimator) Parameters() []*mat.Dense { return nil }

func (c constEstimator) Gradients(_, _ *mat.Dense) ([]*mat.Dense, error) { return nil, nil }
