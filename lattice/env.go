package lattice

import (
	"errors"
	"fmt"

	"github.com/zeu5/lattice-fold-rl/types"
)

var ErrEpisodeDone = errors.New("episode is done, call Reset")

// absolute moves of the chain head
const (
	ActionLeft = iota
	ActionDown
	ActionUp
	ActionRight
	numActions
)

// observation channels
const (
	ChannelH = iota
	ChannelP
	ChannelHead
	numChannels
)

// Info keys of a step result
const (
	InfoChainLength = "chain_length"
	InfoCollisions  = "collisions"
	InfoEnergy      = "energy"
	InfoTrapped     = "trapped"
	InfoCollided    = "collided"
)

var ActionNames = []string{"L", "D", "U", "R"}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) Move(action int) Position {
	switch action {
	case ActionLeft:
		return Position{p.X - 1, p.Y}
	case ActionDown:
		return Position{p.X, p.Y - 1}
	case ActionUp:
		return Position{p.X, p.Y + 1}
	default:
		return Position{p.X + 1, p.Y}
	}
}

func (p Position) Adjacent(o Position) bool {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx+dy*dy == 1
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

type Config struct {
	// reward for a move onto an occupied cell
	CollisionPenalty float64
	// per residue left unplaced when the chain gets trapped
	TrapPenalty float64
	// collisions that end an episode, 0 for no limit
	MaxCollisions int
}

func DefaultConfig() Config {
	return Config{
		CollisionPenalty: -2,
		TrapPenalty:      1,
		MaxCollisions:    0,
	}
}

// Environment folds an HP sequence on the 2D square lattice one residue at a time
type Environment struct {
	sequence Sequence
	config   Config
	width    int

	positions  []Position
	occupied   map[Position]int
	collisions int
	trapped    bool
	done       bool
}

var _ types.Environment = &Environment{}

func NewEnvironment(sequence Sequence, config Config) *Environment {
	e := &Environment{
		sequence: sequence,
		config:   config,
		width:    2*len(sequence) + 1,
	}
	e.reset()
	return e
}

func (e *Environment) reset() {
	e.positions = []Position{{0, 0}}
	e.occupied = map[Position]int{{0, 0}: 0}
	e.collisions = 0
	e.trapped = false
	e.done = false
}

func (e *Environment) Reset() (*types.Observation, error) {
	e.reset()
	return e.observe(), nil
}

func (e *Environment) ActionSpaceSize() int {
	return numActions
}

func (e *Environment) ObservationShape() []int {
	return []int{numChannels, e.width, e.width}
}

func (e *Environment) Sequence() Sequence {
	return e.sequence
}

// Positions of the placed residues in chain order
func (e *Environment) Positions() []Position {
	return append([]Position{}, e.positions...)
}

func (e *Environment) Complete() bool {
	return len(e.positions) == len(e.sequence)
}

func (e *Environment) head() Position {
	return e.positions[len(e.positions)-1]
}

func (e *Environment) Step(action int) (types.StepResult, error) {
	if e.done {
		return types.StepResult{}, ErrEpisodeDone
	}
	if action < 0 || action >= numActions {
		return types.StepResult{}, fmt.Errorf("invalid action %d", action)
	}

	reward := 0.0
	collided := false
	next := e.head().Move(action)
	if _, ok := e.occupied[next]; ok {
		collided = true
		e.collisions++
		reward = e.config.CollisionPenalty
		if e.config.MaxCollisions > 0 && e.collisions >= e.config.MaxCollisions {
			e.done = true
		}
	} else {
		e.occupied[next] = len(e.positions)
		e.positions = append(e.positions, next)
		if e.Complete() {
			e.done = true
			reward = -float64(e.Energy())
		} else if e.freeNeighbours(next) == 0 {
			e.done = true
			e.trapped = true
			reward = -e.config.TrapPenalty * float64(len(e.sequence)-len(e.positions))
		}
	}

	return types.StepResult{
		Next:   e.observe(),
		Reward: reward,
		Done:   e.done,
		Info: map[string]interface{}{
			InfoChainLength: len(e.positions),
			InfoCollisions:  e.collisions,
			InfoEnergy:      e.Energy(),
			InfoTrapped:     e.trapped,
			InfoCollided:    collided,
		},
	}, nil
}

func (e *Environment) freeNeighbours(p Position) int {
	free := 0
	for a := 0; a < numActions; a++ {
		if _, ok := e.occupied[p.Move(a)]; !ok {
			free++
		}
	}
	return free
}

// Energy is minus the number of H-H contacts between residues that are not chain neighbours
func (e *Environment) Energy() int {
	return Energy(e.sequence, e.positions)
}

// Energy of a (partial) fold, positions are the first len(positions) residues of the sequence
func Energy(sequence Sequence, positions []Position) int {
	contacts := 0
	for i := 0; i < len(positions); i++ {
		if sequence[i] != Hydrophobic {
			continue
		}
		for j := i + 2; j < len(positions); j++ {
			if sequence[j] == Hydrophobic && positions[i].Adjacent(positions[j]) {
				contacts++
			}
		}
	}
	return -contacts
}

// observe encodes the fold as a [channels, width, width] tensor centered on the first residue
func (e *Environment) observe() *types.Observation {
	w := e.width
	data := make([]float64, numChannels*w*w)
	offset := len(e.sequence)
	for i, p := range e.positions {
		row, col := offset-p.Y, p.X+offset
		channel := ChannelP
		if e.sequence[i] == Hydrophobic {
			channel = ChannelH
		}
		data[channel*w*w+row*w+col] = 1
	}
	h := e.head()
	data[ChannelHead*w*w+(offset-h.Y)*w+h.X+offset] = 1
	return types.NewObservation(e.ObservationShape(), data)
}
