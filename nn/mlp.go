package nn

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidLayers = errors.New("invalid layer sizes")
	ErrInputSize     = errors.New("input size mismatch")
)

// MLP is a fully connected network with ReLU hidden layers and a linear output layer
// Inputs are processed in batches, one row per sample
type MLP struct {
	sizes   []int
	weights []*mat.Dense
	biases  []*mat.Dense
}

// NewMLP creates a network with the given layer sizes, input first and output last
// Weights are He-uniform initialized from the seed, biases are zero
func NewMLP(sizes []int, seed uint64) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output, got %v", ErrInvalidLayers, sizes)
	}
	for _, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLayers, sizes)
		}
	}
	r := rand.New(rand.NewSource(seed))
	m := &MLP{
		sizes:   append([]int{}, sizes...),
		weights: make([]*mat.Dense, len(sizes)-1),
		biases:  make([]*mat.Dense, len(sizes)-1),
	}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in))
		data := make([]float64, in*out)
		for i := range data {
			data[i] = (2*r.Float64() - 1) * limit
		}
		m.weights[l] = mat.NewDense(in, out, data)
		m.biases[l] = mat.NewDense(1, out, nil)
	}
	return m, nil
}

// NewRandomMLP seeds the initialization with the current time
func NewRandomMLP(sizes []int) (*MLP, error) {
	return NewMLP(sizes, uint64(time.Now().UnixNano()))
}

func (m *MLP) Sizes() []int {
	return append([]int{}, m.sizes...)
}

func (m *MLP) Inputs() int {
	return m.sizes[0]
}

func (m *MLP) Outputs() int {
	return m.sizes[len(m.sizes)-1]
}

// forward returns the output of every layer, index 0 is the input
// hidden layers are stored after the activation
func (m *MLP) forward(states *mat.Dense) ([]*mat.Dense, error) {
	rows, cols := states.Dims()
	if cols != m.sizes[0] {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInputSize, m.sizes[0], cols)
	}
	outputs := make([]*mat.Dense, len(m.weights)+1)
	outputs[0] = states
	last := len(m.weights) - 1
	for l, w := range m.weights {
		_, out := w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(outputs[l], w)
		bias := m.biases[l].RawRowView(0)
		for i := 0; i < rows; i++ {
			row := z.RawRowView(i)
			for j := range row {
				row[j] += bias[j]
				if l != last && row[j] < 0 {
					row[j] = 0
				}
			}
		}
		outputs[l+1] = z
	}
	return outputs, nil
}

// Evaluate returns one row of outputs per row of states
func (m *MLP) Evaluate(states *mat.Dense) (*mat.Dense, error) {
	outputs, err := m.forward(states)
	if err != nil {
		return nil, err
	}
	return outputs[len(outputs)-1], nil
}

// Parameters returns the live parameter matrices, weights and biases interleaved per layer
func (m *MLP) Parameters() []*mat.Dense {
	params := make([]*mat.Dense, 0, 2*len(m.weights))
	for l := range m.weights {
		params = append(params, m.weights[l], m.biases[l])
	}
	return params
}

// Gradients backpropagates outputGrad (d loss / d output) through the network
// The result is aligned with Parameters()
func (m *MLP) Gradients(states, outputGrad *mat.Dense) ([]*mat.Dense, error) {
	outputs, err := m.forward(states)
	if err != nil {
		return nil, err
	}
	rows, _ := states.Dims()
	gr, gc := outputGrad.Dims()
	if gr != rows || gc != m.Outputs() {
		return nil, fmt.Errorf("%w: output gradient %dx%d for %d samples and %d outputs", ErrInputSize, gr, gc, rows, m.Outputs())
	}

	grads := make([]*mat.Dense, 2*len(m.weights))
	delta := mat.DenseCopyOf(outputGrad)
	for l := len(m.weights) - 1; l >= 0; l-- {
		in, out := m.weights[l].Dims()

		dw := mat.NewDense(in, out, nil)
		dw.Mul(outputs[l].T(), delta)
		db := mat.NewDense(1, out, nil)
		dbRow := db.RawRowView(0)
		for i := 0; i < rows; i++ {
			for j, v := range delta.RawRowView(i) {
				dbRow[j] += v
			}
		}
		grads[2*l] = dw
		grads[2*l+1] = db

		if l == 0 {
			break
		}
		prev := mat.NewDense(rows, in, nil)
		prev.Mul(delta, m.weights[l].T())
		// relu derivative, the stored activation is zero exactly where the unit was inactive
		for i := 0; i < rows; i++ {
			act := outputs[l].RawRowView(i)
			row := prev.RawRowView(i)
			for j := range row {
				if act[j] <= 0 {
					row[j] = 0
				}
			}
		}
		delta = prev
	}
	return grads, nil
}

// Clone returns an independent copy with the same parameters
func (m *MLP) Clone() *MLP {
	c := &MLP{
		sizes:   append([]int{}, m.sizes...),
		weights: make([]*mat.Dense, len(m.weights)),
		biases:  make([]*mat.Dense, len(m.biases)),
	}
	for l := range m.weights {
		c.weights[l] = mat.DenseCopyOf(m.weights[l])
		c.biases[l] = mat.DenseCopyOf(m.biases[l])
	}
	return c
}

const (
	MLPKind  = "mlp"
	ConvKind = "conv"
)

// Weights is a serializable form of a network
// Sizes are the MLP layer sizes, or the convolution channels followed by the actions for a ConvNet.
// An empty Kind is read as an MLP.
type Weights struct {
	Kind   string      `json:"kind,omitempty"`
	Shape  []int       `json:"shape,omitempty"`
	Sizes  []int       `json:"sizes"`
	Params [][]float64 `json:"params"`
}

// Weights exports a copy of the parameters in Parameters() order
func (m *MLP) Weights() Weights {
	return Weights{Kind: MLPKind, Sizes: m.Sizes(), Params: exportParams(m.Parameters())}
}

// NewMLPFromWeights rebuilds a network from exported weights
func NewMLPFromWeights(w Weights) (*MLP, error) {
	m, err := NewMLP(w.Sizes, 0)
	if err != nil {
		return nil, err
	}
	if err := m.Load(w); err != nil {
		return nil, err
	}
	return m, nil
}

// Load overwrites the parameters with the exported weights, the layer sizes must match
func (m *MLP) Load(w Weights) error {
	if (w.Kind != "" && w.Kind != MLPKind) || !equalInts(w.Sizes, m.sizes) {
		return fmt.Errorf("%w: got %s %v, expected %v", ErrInvalidLayers, w.Kind, w.Sizes, m.sizes)
	}
	return loadParams(m.Parameters(), w.Params)
}

func exportParams(params []*mat.Dense) [][]float64 {
	out := make([][]float64, 0, len(params))
	for _, p := range params {
		r, c := p.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, p.RawRowView(i)...)
		}
		out = append(out, data)
	}
	return out
}

// loadParams copies values into params, nothing is written unless every block fits
func loadParams(params []*mat.Dense, values [][]float64) error {
	if len(values) != len(params) {
		return fmt.Errorf("%w: got %d parameter blocks, expected %d", ErrInvalidLayers, len(values), len(params))
	}
	for i, p := range params {
		r, c := p.Dims()
		if len(values[i]) != r*c {
			return fmt.Errorf("%w: parameter block %d has %d values, expected %d", ErrInvalidLayers, i, len(values[i]), r*c)
		}
	}
	for i, p := range params {
		r, c := p.Dims()
		p.Copy(mat.NewDense(r, c, values[i]))
	}
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
