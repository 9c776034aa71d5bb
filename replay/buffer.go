package replay

import (
	"fmt"
	"math"
	"time"

	"github.com/zeu5/lattice-fold-rl/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// PriorityEpsilon is the smallest priority a slot can hold
const PriorityEpsilon = 1e-5

// PriorityCeiling is the largest priority a slot can hold, overflowing TD errors are capped here
const PriorityCeiling = 1e100

// Transition is a single (s, a, r, s', done) record
type Transition struct {
	State     *types.Observation
	Action    int
	Reward    float64
	NextState *types.Observation
	Done      bool
}

func (t Transition) copy() Transition {
	return Transition{
		State:     t.State.Copy(),
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: t.NextState.Copy(),
		Done:      t.Done,
	}
}

// Buffer is a fixed capacity prioritized replay buffer.
//
// Transitions and priorities are stored as two parallel arrays indexed by slot.
// Once full, the slot at the cursor is overwritten so the oldest transition is evicted first.
// Not safe for concurrent use.
type Buffer struct {
	capacity   int
	slots      []Transition
	priorities []float64
	cursor     int
	stateSize  int

	src rand.Source
}

// NewBuffer creates a buffer holding at most capacity transitions
func NewBuffer(capacity int) *Buffer {
	return NewBufferWithSeed(capacity, uint64(time.Now().UnixNano()))
}

// NewBufferWithSeed creates a buffer whose sampling is deterministic for the given seed
func NewBufferWithSeed(capacity int, seed uint64) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("replay buffer capacity must be positive, got %d", capacity))
	}
	return &Buffer{
		capacity:   capacity,
		slots:      make([]Transition, 0, capacity),
		priorities: make([]float64, capacity),
		cursor:     0,
		stateSize:  -1,
		src:        rand.NewSource(seed),
	}
}

// Len is the number of stored transitions
func (b *Buffer) Len() int {
	return len(b.slots)
}

// Capacity is the maximum number of stored transitions
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Push stores a copy of the transition with the highest priority currently in the buffer
// (or 1.0 when empty) so that it is sampled at least once before its error is known
func (b *Buffer) Push(t Transition) error {
	if t.State == nil || t.NextState == nil {
		return fmt.Errorf("%w: nil state", ErrShapeMismatch)
	}
	if !t.State.SameShape(t.NextState) {
		return fmt.Errorf("%w: state %v, next state %v", ErrShapeMismatch, t.State.Shape, t.NextState.Shape)
	}
	if b.stateSize >= 0 && t.State.Size() != b.stateSize {
		return fmt.Errorf("%w: state size %d, buffer holds size %d", ErrShapeMismatch, t.State.Size(), b.stateSize)
	}
	b.stateSize = t.State.Size()

	maxPriority := 1.0
	if len(b.slots) > 0 {
		maxPriority = floats.Max(b.priorities[:len(b.slots)])
	}

	if len(b.slots) < b.capacity {
		b.slots = append(b.slots, t.copy())
	} else {
		b.slots[b.cursor] = t.copy()
	}
	b.priorities[b.cursor] = maxPriority
	b.cursor = (b.cursor + 1) % b.capacity
	return nil
}

// UpdatePriorities overwrites the priorities of the given slots.
// All indices are checked before any write, values are clamped to [PriorityEpsilon, PriorityCeiling]
// and NaN is treated as PriorityEpsilon.
func (b *Buffer) UpdatePriorities(indices []int, priorities []float64) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("mismatched lengths: %d indices vs %d priorities", len(indices), len(priorities))
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(b.slots) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, idx, len(b.slots))
		}
	}
	for i, idx := range indices {
		b.priorities[idx] = clampPriority(priorities[i])
	}
	return nil
}

func clampPriority(p float64) float64 {
	if math.IsNaN(p) || p < PriorityEpsilon {
		return PriorityEpsilon
	}
	if p > PriorityCeiling {
		return PriorityCeiling
	}
	return p
}

// Priorities returns a copy of the priorities of the populated slots
func (b *Buffer) Priorities() []float64 {
	out := make([]float64, len(b.slots))
	copy(out, b.priorities[:len(b.slots)])
	return out
}

// Transition returns a copy of the transition stored at slot i
func (b *Buffer) Transition(i int) (Transition, error) {
	if i < 0 || i >= len(b.slots) {
		return Transition{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, i, len(b.slots))
	}
	return b.slots[i].copy(), nil
}
