package nn

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/lattice-fold-rl/dqn"
	"gonum.org/v1/gonum/mat"
)

var _ dqn.Estimator = &ConvNet{}
var _ Network = &ConvNet{}
var _ Network = &MLP{}

func TestNewConvNetValidation(t *testing.T) {
	_, err := NewConvNet([]int{3, 5}, []int{4}, 4, 1)
	assert.ErrorIs(t, err, ErrInvalidLayers)
	_, err = NewConvNet([]int{3, 5, 5}, nil, 4, 1)
	assert.ErrorIs(t, err, ErrInvalidLayers)
	_, err = NewConvNet([]int{3, 5, 5}, []int{4, 0}, 4, 1)
	assert.ErrorIs(t, err, ErrInvalidLayers)
	_, err = NewConvNet([]int{3, 5, 5}, []int{4}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidLayers)

	n, err := NewConvNet([]int{3, 5, 5}, []int{4, 4}, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 75, n.Inputs())
	assert.Equal(t, 4, n.Outputs())
	assert.Len(t, n.Parameters(), 6)
	r, c := n.Parameters()[0].Dims()
	assert.Equal(t, []int{4, 27}, []int{r, c})
	r, c = n.Parameters()[4].Dims()
	assert.Equal(t, []int{100, 4}, []int{r, c})
}

func TestConvNetEvaluate(t *testing.T) {
	n, err := NewConvNet([]int{1, 2, 2}, []int{1}, 1, 0)
	require.NoError(t, err)
	require.NoError(t, n.Load(Weights{
		Kind:  ConvKind,
		Shape: []int{1, 2, 2},
		Sizes: []int{1, 1},
		Params: [][]float64{
			{1, 1, 1, 1, 1, 1, 1, 1, 1}, {0},
			{1, 0, 0, 1}, {0.5},
		},
	}))

	out, err := n.Evaluate(mat.NewDense(2, 4, []float64{1, 2, 3, 4, 1, 2, 3, -10}))
	require.NoError(t, err)
	// every cell sees the whole 2x2 grid, sum 10 plus the cell itself -> (11, 12, 13, 14)
	assert.InDelta(t, 25.5, out.At(0, 0), 1e-12)
	// sum -4 plus the cell -> (-3, -2, -1, -14), all inactive
	assert.InDelta(t, 0.5, out.At(1, 0), 1e-12)

	_, err = n.Evaluate(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrInputSize)
}

func TestConvNetZeroPadding(t *testing.T) {
	n, err := NewConvNet([]int{1, 3, 3}, []int{2}, 9, 0)
	require.NoError(t, err)
	// channel 0 reads the right neighbour, channel 1 the one below, the head copies channel 0
	shift := make([]float64, 18)
	shift[5] = 1
	shift[9+7] = 1
	head := make([]float64, 18*9)
	for i := 0; i < 9; i++ {
		head[i*9+i] = 1
	}
	require.NoError(t, n.Load(Weights{
		Kind:   ConvKind,
		Shape:  []int{1, 3, 3},
		Sizes:  []int{2, 9},
		Params: [][]float64{shift, {0, 0}, head, make([]float64, 9)},
	}))

	out, err := n.Evaluate(mat.NewDense(1, 9, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 0, 5, 6, 0, 8, 9, 0}, out.RawRowView(0))
}

func TestConvNetGradientsMatchFiniteDifferences(t *testing.T) {
	n, err := NewConvNet([]int{2, 4, 4}, []int{3, 3}, 3, 7)
	require.NoError(t, err)
	// non zero biases keep every unit away from the relu kink
	for _, b := range []int{1, 3, 5} {
		row := n.Parameters()[b].RawRowView(0)
		for j := range row {
			row[j] = 0.05 * float64(j+1)
		}
	}
	data := make([]float64, 2*32)
	for i := range data {
		data[i] = math.Sin(1.7*float64(i) + 0.3)
	}
	states := mat.NewDense(2, 32, data)
	// loss = sum(c * output)
	coef := mat.NewDense(2, 3, []float64{1, -0.5, 0.3, 2, -1, 0.7})
	loss := func() float64 {
		out, err := n.Evaluate(states)
		require.NoError(t, err)
		var prod mat.Dense
		prod.MulElem(out, coef)
		return mat.Sum(&prod)
	}

	grads, err := n.Gradients(states, coef)
	require.NoError(t, err)
	require.Len(t, grads, 6)

	const h = 1e-6
	for k, p := range n.Parameters() {
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.At(i, j)
				p.Set(i, j, orig+h)
				plus := loss()
				p.Set(i, j, orig-h)
				minus := loss()
				p.Set(i, j, orig)
				assert.InDelta(t, (plus-minus)/(2*h), grads[k].At(i, j), 1e-4, "param %d (%d,%d)", k, i, j)
			}
		}
	}

	_, err = n.Gradients(states, mat.NewDense(2, 4, nil))
	assert.ErrorIs(t, err, ErrInputSize)
	_, err = n.Gradients(mat.NewDense(2, 31, nil), coef)
	assert.ErrorIs(t, err, ErrInputSize)
}

func TestConvNetCloneIsIndependent(t *testing.T) {
	n, err := NewConvNet([]int{3, 5, 5}, []int{4}, 4, 3)
	require.NoError(t, err)
	c := n.Clone()
	for i, p := range n.Parameters() {
		assert.True(t, mat.Equal(p, c.Parameters()[i]))
		assert.NotSame(t, p, c.Parameters()[i])
	}

	n.Parameters()[0].Set(0, 0, 99)
	assert.NotEqual(t, 99.0, c.Parameters()[0].At(0, 0))
}

func TestConvNetWeightsRestore(t *testing.T) {
	n, err := NewConvNet([]int{3, 5, 5}, []int{4, 4}, 4, 3)
	require.NoError(t, err)

	raw, err := json.Marshal(n.Weights())
	require.NoError(t, err)
	var w Weights
	require.NoError(t, json.Unmarshal(raw, &w))

	restored, err := FromWeights(w)
	require.NoError(t, err)
	require.IsType(t, &ConvNet{}, restored)
	for i, p := range n.Parameters() {
		assert.True(t, mat.Equal(p, restored.Parameters()[i]))
	}

	other, err := NewConvNet([]int{3, 5, 5}, []int{4}, 4, 3)
	require.NoError(t, err)
	assert.ErrorIs(t, other.Load(n.Weights()), ErrInvalidLayers)

	m, err := NewMLP([]int{75, 4}, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Load(n.Weights()), ErrInvalidLayers)
	assert.ErrorIs(t, n.Load(m.Weights()), ErrInvalidLayers)

	_, err = FromWeights(Weights{Kind: "rnn"})
	assert.ErrorIs(t, err, ErrInvalidLayers)
}

func TestFromWeightsReadsUntypedAsMLP(t *testing.T) {
	m, err := NewMLP([]int{2, 4, 2}, 3)
	require.NoError(t, err)
	w := m.Weights()
	w.Kind = ""

	restored, err := FromWeights(w)
	require.NoError(t, err)
	require.IsType(t, &MLP{}, restored)

	clone, err := Clone(m)
	require.NoError(t, err)
	for i, p := range m.Parameters() {
		assert.True(t, mat.Equal(p, clone.Parameters()[i]))
		assert.NotSame(t, p, clone.Parameters()[i])
	}
}

func TestConvNetWorksWithHardSync(t *testing.T) {
	online, err := NewConvNet([]int{2, 3, 3}, []int{2}, 4, 1)
	require.NoError(t, err)
	target, err := NewConvNet([]int{2, 3, 3}, []int{2}, 4, 2)
	require.NoError(t, err)

	require.NoError(t, dqn.HardSync(target, online))
	states := mat.NewDense(1, 18, []float64{1, 0, 1, 0, 1, 0, 1, 0, 1, 0.5, -0.5, 0, 0, 0, 0.5, 1, 1, -1})
	a, err := online.Evaluate(states)
	require.NoError(t, err)
	b, err := target.Evaluate(states)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}
