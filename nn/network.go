package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Network is a trainable estimator that can be checkpointed
type Network interface {
	Evaluate(*mat.Dense) (*mat.Dense, error)
	Parameters() []*mat.Dense
	Gradients(states, outputGrad *mat.Dense) ([]*mat.Dense, error)
	Weights() Weights
	Inputs() int
	Outputs() int
}

// FromWeights rebuilds the network described by exported weights
func FromWeights(w Weights) (Network, error) {
	var (
		n   Network
		err error
	)
	switch w.Kind {
	case "", MLPKind:
		n, err = NewMLPFromWeights(w)
	case ConvKind:
		n, err = NewConvNetFromWeights(w)
	default:
		err = fmt.Errorf("%w: unknown network kind %q", ErrInvalidLayers, w.Kind)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Clone returns an independent network with the same parameters
func Clone(n Network) (Network, error) {
	return FromWeights(n.Weights())
}
