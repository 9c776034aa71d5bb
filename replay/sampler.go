package replay

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Batch of transitions drawn from the buffer, one row per sample.
// Indices are the slots the samples came from and are the handle for UpdatePriorities.
type Batch struct {
	States     *mat.Dense
	Actions    []int
	Rewards    []float64
	NextStates *mat.Dense
	Dones      []float64
	Indices    []int
	Weights    []float64
}

// Size of the batch
func (b *Batch) Size() int {
	return len(b.Indices)
}

// Probabilities converts priorities to a sampling distribution, p^alpha / sum(p^alpha).
// Priorities are scaled by their maximum first so that the sum cannot overflow.
func Probabilities(priorities []float64, alpha float64) []float64 {
	probs := make([]float64, len(priorities))
	if len(probs) == 0 {
		return probs
	}
	max := floats.Max(priorities)
	if max <= 0 || math.IsInf(max, 1) {
		for i := range probs {
			probs[i] = 1 / float64(len(probs))
		}
		return probs
	}
	for i, p := range priorities {
		probs[i] = math.Pow(p/max, alpha)
	}
	sum := floats.Sum(probs)
	floats.Scale(1/sum, probs)
	return probs
}

// ImportanceWeights computes (N * P(i))^-beta for each sampled probability,
// normalized by the largest weight so that the maximum is exactly 1
func ImportanceWeights(sampledProbs []float64, n int, beta float64) []float64 {
	weights := make([]float64, len(sampledProbs))
	for i, p := range sampledProbs {
		weights[i] = math.Pow(float64(n)*p, -beta)
	}
	max := floats.Max(weights)
	for i := range weights {
		weights[i] = weights[i] / max
	}
	return weights
}

// Sample draws batchSize transitions with replacement, proportionally to priority^alpha,
// and attaches importance sampling weights corrected with beta
func (b *Buffer) Sample(batchSize int, alpha, beta float64) (*Batch, error) {
	n := len(b.slots)
	if n == 0 {
		return nil, ErrEmptyBuffer
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	probs := Probabilities(b.priorities[:n], alpha)
	dist := distuv.NewCategorical(probs, b.src)

	indices := make([]int, batchSize)
	sampledProbs := make([]float64, batchSize)
	for i := 0; i < batchSize; i++ {
		idx := int(dist.Rand())
		indices[i] = idx
		sampledProbs[i] = probs[idx]
	}

	batch := &Batch{
		States:     mat.NewDense(batchSize, b.stateSize, nil),
		Actions:    make([]int, batchSize),
		Rewards:    make([]float64, batchSize),
		NextStates: mat.NewDense(batchSize, b.stateSize, nil),
		Dones:      make([]float64, batchSize),
		Indices:    indices,
		Weights:    ImportanceWeights(sampledProbs, n, beta),
	}
	for i, idx := range indices {
		t := b.slots[idx]
		batch.States.SetRow(i, t.State.Data)
		batch.NextStates.SetRow(i, t.NextState.Data)
		batch.Actions[i] = t.Action
		batch.Rewards[i] = t.Reward
		if t.Done {
			batch.Dones[i] = 1
		}
	}
	return batch, nil
}
