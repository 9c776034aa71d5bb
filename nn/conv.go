package nn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const (
	kernelSize = 3
	kernelArea = kernelSize * kernelSize
)

// ConvNet is a stack of 3x3 same padding convolutions with ReLU activations followed by a
// linear head over the flattened feature map.
// A layer that keeps the channel count adds its input back before the activation, like a
// residual block. Every input row is one observation laid out as channel, row, column.
type ConvNet struct {
	// channels, height, width of the input
	shape []int
	// output channels of every convolution
	channels []int
	actions  int

	// out x in*9 kernels and 1 x out biases per convolution
	kernels []*mat.Dense
	biases  []*mat.Dense
	// out*height*width x actions
	head     *mat.Dense
	headBias *mat.Dense
}

// NewConvNet creates a network for inputs of the given [channels, height, width] shape
// Weights are He-uniform initialized from the seed, biases are zero
func NewConvNet(shape, channels []int, actions int, seed uint64) (*ConvNet, error) {
	if len(shape) != 3 || len(channels) == 0 || actions <= 0 {
		return nil, fmt.Errorf("%w: shape %v, channels %v, actions %d", ErrInvalidLayers, shape, channels, actions)
	}
	for _, s := range append(append([]int{}, shape...), channels...) {
		if s <= 0 {
			return nil, fmt.Errorf("%w: shape %v, channels %v", ErrInvalidLayers, shape, channels)
		}
	}
	r := rand.New(rand.NewSource(seed))
	uniform := func(rows, cols, fanIn int) *mat.Dense {
		limit := math.Sqrt(6.0 / float64(fanIn))
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = (2*r.Float64() - 1) * limit
		}
		return mat.NewDense(rows, cols, data)
	}

	n := &ConvNet{
		shape:    append([]int{}, shape...),
		channels: append([]int{}, channels...),
		actions:  actions,
		kernels:  make([]*mat.Dense, len(channels)),
		biases:   make([]*mat.Dense, len(channels)),
	}
	in := shape[0]
	for l, out := range channels {
		n.kernels[l] = uniform(out, in*kernelArea, in*kernelArea)
		n.biases[l] = mat.NewDense(1, out, nil)
		in = out
	}
	features := in * n.area()
	n.head = uniform(features, actions, features)
	n.headBias = mat.NewDense(1, actions, nil)
	return n, nil
}

func (n *ConvNet) area() int {
	return n.shape[1] * n.shape[2]
}

func (n *ConvNet) Shape() []int {
	return append([]int{}, n.shape...)
}

func (n *ConvNet) Channels() []int {
	return append([]int{}, n.channels...)
}

func (n *ConvNet) Inputs() int {
	return n.shape[0] * n.area()
}

func (n *ConvNet) Outputs() int {
	return n.actions
}

// im2col lays out the 3x3 neighbourhood of every cell as a column, cells outside the
// input read as zero
func (n *ConvNet) im2col(x *mat.Dense) *mat.Dense {
	in, _ := x.Dims()
	h, w := n.shape[1], n.shape[2]
	cols := mat.NewDense(in*kernelArea, h*w, nil)
	for c := 0; c < in; c++ {
		src := x.RawRowView(c)
		for k := 0; k < kernelArea; k++ {
			dy, dx := k/kernelSize-1, k%kernelSize-1
			dst := cols.RawRowView(c*kernelArea + k)
			for y := 0; y < h; y++ {
				sy := y + dy
				if sy < 0 || sy >= h {
					continue
				}
				for col := 0; col < w; col++ {
					sx := col + dx
					if sx < 0 || sx >= w {
						continue
					}
					dst[y*w+col] = src[sy*w+sx]
				}
			}
		}
	}
	return cols
}

// col2im is the adjoint of im2col, it sums the column gradients back onto the input cells
func (n *ConvNet) col2im(cols *mat.Dense, in int) *mat.Dense {
	h, w := n.shape[1], n.shape[2]
	x := mat.NewDense(in, h*w, nil)
	for c := 0; c < in; c++ {
		dst := x.RawRowView(c)
		for k := 0; k < kernelArea; k++ {
			dy, dx := k/kernelSize-1, k%kernelSize-1
			src := cols.RawRowView(c*kernelArea + k)
			for y := 0; y < h; y++ {
				sy := y + dy
				if sy < 0 || sy >= h {
					continue
				}
				for col := 0; col < w; col++ {
					sx := col + dx
					if sx < 0 || sx >= w {
						continue
					}
					dst[sy*w+sx] += src[y*w+col]
				}
			}
		}
	}
	return x
}

func (n *ConvNet) residual(l int) bool {
	in := n.shape[0]
	if l > 0 {
		in = n.channels[l-1]
	}
	return in == n.channels[l]
}

// sampleForward runs the convolutions on one input row
// It returns the activation of every layer, index 0 is the input, and the im2col matrix of
// every layer input
func (n *ConvNet) sampleForward(row []float64) ([]*mat.Dense, []*mat.Dense) {
	acts := make([]*mat.Dense, len(n.kernels)+1)
	cols := make([]*mat.Dense, len(n.kernels))
	acts[0] = mat.NewDense(n.shape[0], n.area(), append([]float64{}, row...))
	for l, k := range n.kernels {
		cols[l] = n.im2col(acts[l])
		z := mat.NewDense(n.channels[l], n.area(), nil)
		z.Mul(k, cols[l])
		if n.residual(l) {
			z.Add(z, acts[l])
		}
		bias := n.biases[l].RawRowView(0)
		for c := 0; c < n.channels[l]; c++ {
			out := z.RawRowView(c)
			for j := range out {
				out[j] += bias[c]
				if out[j] < 0 {
					out[j] = 0
				}
			}
		}
		acts[l+1] = z
	}
	return acts, cols
}

func (n *ConvNet) checkStates(states *mat.Dense) error {
	if _, cols := states.Dims(); cols != n.Inputs() {
		return fmt.Errorf("%w: expected %d, got %d", ErrInputSize, n.Inputs(), cols)
	}
	return nil
}

// flat views an activation as a single row, it shares the backing data
func flat(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(1, r*c, a.RawMatrix().Data)
}

// Evaluate returns one row of outputs per row of states
func (n *ConvNet) Evaluate(states *mat.Dense) (*mat.Dense, error) {
	if err := n.checkStates(states); err != nil {
		return nil, err
	}
	rows, _ := states.Dims()
	out := mat.NewDense(rows, n.actions, nil)
	q := mat.NewDense(1, n.actions, nil)
	for i := 0; i < rows; i++ {
		acts, _ := n.sampleForward(states.RawRowView(i))
		q.Mul(flat(acts[len(acts)-1]), n.head)
		q.Add(q, n.headBias)
		out.SetRow(i, q.RawRowView(0))
	}
	return out, nil
}

// Parameters returns the live parameter matrices, kernel and bias per convolution then the head
func (n *ConvNet) Parameters() []*mat.Dense {
	params := make([]*mat.Dense, 0, 2*len(n.kernels)+2)
	for l := range n.kernels {
		params = append(params, n.kernels[l], n.biases[l])
	}
	return append(params, n.head, n.headBias)
}

// Gradients backpropagates outputGrad (d loss / d output) through the network
// Samples are processed one at a time so that only one set of im2col matrices is alive
func (n *ConvNet) Gradients(states, outputGrad *mat.Dense) ([]*mat.Dense, error) {
	if err := n.checkStates(states); err != nil {
		return nil, err
	}
	rows, _ := states.Dims()
	gr, gc := outputGrad.Dims()
	if gr != rows || gc != n.actions {
		return nil, fmt.Errorf("%w: output gradient %dx%d for %d samples and %d outputs", ErrInputSize, gr, gc, rows, n.actions)
	}

	params := n.Parameters()
	grads := make([]*mat.Dense, len(params))
	for i, p := range params {
		r, c := p.Dims()
		grads[i] = mat.NewDense(r, c, nil)
	}
	dHead := grads[len(grads)-2]
	dHeadBias := grads[len(grads)-1]

	var tmp mat.Dense
	for i := 0; i < rows; i++ {
		acts, cols := n.sampleForward(states.RawRowView(i))
		g := mat.NewDense(1, n.actions, append([]float64{}, outputGrad.RawRowView(i)...))

		last := acts[len(acts)-1]
		tmp.Reset()
		tmp.Mul(flat(last).T(), g)
		dHead.Add(dHead, &tmp)
		dHeadBias.Add(dHeadBias, g)

		lr, lc := last.Dims()
		delta := mat.NewDense(lr, lc, nil)
		flat(delta).Mul(g, n.head.T())

		for l := len(n.kernels) - 1; l >= 0; l-- {
			// relu derivative, the activation is zero exactly where the unit was inactive
			act := acts[l+1]
			for c := 0; c < n.channels[l]; c++ {
				a := act.RawRowView(c)
				d := delta.RawRowView(c)
				for j := range d {
					if a[j] <= 0 {
						d[j] = 0
					}
				}
			}

			tmp.Reset()
			tmp.Mul(delta, cols[l].T())
			grads[2*l].Add(grads[2*l], &tmp)
			db := grads[2*l+1].RawRowView(0)
			for c := range db {
				for _, v := range delta.RawRowView(c) {
					db[c] += v
				}
			}

			if l == 0 {
				break
			}
			dcols := mat.NewDense(n.channels[l-1]*kernelArea, n.area(), nil)
			dcols.Mul(n.kernels[l].T(), delta)
			prev := n.col2im(dcols, n.channels[l-1])
			if n.residual(l) {
				prev.Add(prev, delta)
			}
			delta = prev
		}
	}
	return grads, nil
}

// Weights exports a copy of the parameters in Parameters() order
func (n *ConvNet) Weights() Weights {
	return Weights{
		Kind:   ConvKind,
		Shape:  n.Shape(),
		Sizes:  append(n.Channels(), n.actions),
		Params: exportParams(n.Parameters()),
	}
}

// Load overwrites the parameters with the exported weights, the layout must match
func (n *ConvNet) Load(w Weights) error {
	if w.Kind != ConvKind || !equalInts(w.Shape, n.shape) || !equalInts(w.Sizes, append(n.Channels(), n.actions)) {
		return fmt.Errorf("%w: got %s %v %v, expected %s %v %v", ErrInvalidLayers,
			w.Kind, w.Shape, w.Sizes, ConvKind, n.shape, append(n.Channels(), n.actions))
	}
	return loadParams(n.Parameters(), w.Params)
}

// NewConvNetFromWeights rebuilds a network from exported weights
func NewConvNetFromWeights(w Weights) (*ConvNet, error) {
	if len(w.Sizes) < 2 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayers, w.Sizes)
	}
	n, err := NewConvNet(w.Shape, w.Sizes[:len(w.Sizes)-1], w.Sizes[len(w.Sizes)-1], 0)
	if err != nil {
		return nil, err
	}
	if err := n.Load(w); err != nil {
		return nil, err
	}
	return n, nil
}

// Clone returns an independent copy with the same parameters
func (n *ConvNet) Clone() *ConvNet {
	c := &ConvNet{
		shape:    n.Shape(),
		channels: n.Channels(),
		actions:  n.actions,
		kernels:  make([]*mat.Dense, len(n.kernels)),
		biases:   make([]*mat.Dense, len(n.biases)),
		head:     mat.DenseCopyOf(n.head),
		headBias: mat.DenseCopyOf(n.headBias),
	}
	for l := range n.kernels {
		c.kernels[l] = mat.DenseCopyOf(n.kernels[l])
		c.biases[l] = mat.DenseCopyOf(n.biases[l])
	}
	return c
}
