package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SGD is plain gradient descent
type SGD struct {
	Rate float64
	// global gradient norm limit, 0 disables clipping
	Clip float64
}

func NewSGD(rate float64) *SGD {
	return &SGD{Rate: rate}
}

func (s *SGD) Step(params, grads []*mat.Dense) error {
	if err := checkAligned(params, grads); err != nil {
		return err
	}
	scale := s.Rate * clipScale(grads, s.Clip)
	for i, p := range params {
		var step mat.Dense
		step.Scale(scale, grads[i])
		p.Sub(p, &step)
	}
	return nil
}

// Adam optimizer, moments are allocated on the first step
type Adam struct {
	Rate    float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
	Clip    float64

	t int
	m []*mat.Dense
	v []*mat.Dense
}

func NewAdam(rate float64) *Adam {
	return &Adam{
		Rate:    rate,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

func (a *Adam) Step(params, grads []*mat.Dense) error {
	if err := checkAligned(params, grads); err != nil {
		return err
	}
	if a.m == nil {
		a.m = make([]*mat.Dense, len(params))
		a.v = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.Dims()
			a.m[i] = mat.NewDense(r, c, nil)
			a.v[i] = mat.NewDense(r, c, nil)
		}
	} else if len(a.m) != len(params) {
		return fmt.Errorf("optimizer was used with %d parameters, got %d", len(a.m), len(params))
	}
	a.t++
	scale := clipScale(grads, a.Clip)
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		r, c := p.Dims()
		if mr, mc := a.m[i].Dims(); mr != r || mc != c {
			return fmt.Errorf("parameter %d changed shape from %dx%d to %dx%d", i, mr, mc, r, c)
		}
		for row := 0; row < r; row++ {
			pRow := p.RawRowView(row)
			gRow := grads[i].RawRowView(row)
			mRow := a.m[i].RawRowView(row)
			vRow := a.v[i].RawRowView(row)
			for j := range pRow {
				g := gRow[j] * scale
				mRow[j] = a.Beta1*mRow[j] + (1-a.Beta1)*g
				vRow[j] = a.Beta2*vRow[j] + (1-a.Beta2)*g*g
				pRow[j] -= a.Rate * (mRow[j] / c1) / (math.Sqrt(vRow[j]/c2) + a.Epsilon)
			}
		}
	}
	return nil
}

// Reset drops the moment estimates
func (a *Adam) Reset() {
	a.t = 0
	a.m = nil
	a.v = nil
}

func checkAligned(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return fmt.Errorf("%d parameters and %d gradients", len(params), len(grads))
	}
	for i := range params {
		pr, pc := params[i].Dims()
		gr, gc := grads[i].Dims()
		if pr != gr || pc != gc {
			return fmt.Errorf("gradient %d is %dx%d, parameter is %dx%d", i, gr, gc, pr, pc)
		}
	}
	return nil
}

// clipScale returns the factor bringing the global gradient norm down to limit
func clipScale(grads []*mat.Dense, limit float64) float64 {
	if limit <= 0 {
		return 1
	}
	sum := 0.0
	for _, g := range grads {
		n := mat.Norm(g, 2)
		sum += n * n
	}
	norm := math.Sqrt(sum)
	if norm <= limit {
		return 1
	}
	return limit / norm
}
