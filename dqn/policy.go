package dqn

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeu5/lattice-fold-rl/replay"
	"github.com/zeu5/lattice-fold-rl/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config of the learning loop
type Config struct {
	BufferCapacity int
	BatchSize      int
	// priority exponent, 0 uniform, 1 fully proportional
	Alpha float64
	// minimum number of stored transitions before training starts
	StartTrain int
	// train once every TrainEvery environment steps
	TrainEvery int
	Gamma      float64

	Epsilon EpsilonSchedule
	Beta    BetaSchedule
	Sync    TargetSynchronizer

	Seed uint64
}

// Validate checks the values that cannot be repaired at runtime
func (c Config) Validate() error {
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.BufferCapacity)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.TrainEvery <= 0 {
		return fmt.Errorf("train every must be positive, got %d", c.TrainEvery)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0, 1], got %f", c.Alpha)
	}
	if c.Epsilon.Decay <= 0 {
		return fmt.Errorf("%w: epsilon decay must be positive", ErrInvalidScheduleParameter)
	}
	if c.Beta.Frames <= 0 {
		return fmt.Errorf("%w: beta frames must be positive", ErrInvalidScheduleParameter)
	}
	return c.Sync.Validate()
}

// Stats of the learning process
type Stats struct {
	Frames            int     `json:"frames"`
	Updates           int     `json:"updates"`
	Episodes          int     `json:"episodes"`
	Syncs             int     `json:"syncs"`
	Epsilon           float64 `json:"epsilon"`
	Beta              float64 `json:"beta"`
	LastLoss          float64 `json:"last_loss"`
	BufferLen         int     `json:"buffer_len"`
	LastEpisodeReward float64 `json:"last_episode_reward"`
	BestEpisodeReward float64 `json:"best_episode_reward"`
}

// Policy is an epsilon greedy DQN policy trained from a prioritized replay buffer
type Policy struct {
	config    Config
	online    Estimator
	target    Estimator
	optimizer Optimizer
	buffer    *replay.Buffer
	loss      TDLoss
	rand      *rand.Rand
	logger    zerolog.Logger

	// initial parameters, restored on Reset
	initial []*mat.Dense
	greedy  bool

	frames   int
	updates  int
	episodes int

	lock  *sync.Mutex
	stats Stats
}

var _ types.Policy = &Policy{}

// NewPolicy creates a learning policy, the target estimator is synced to the online one
func NewPolicy(config Config, online, target Estimator, optimizer Optimizer, logger zerolog.Logger) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := HardSync(target, online); err != nil {
		return nil, err
	}
	p := &Policy{
		config:    config,
		online:    online,
		target:    target,
		optimizer: optimizer,
		buffer:    replay.NewBufferWithSeed(config.BufferCapacity, config.Seed),
		loss:      TDLoss{Gamma: config.Gamma},
		rand:      rand.New(rand.NewSource(config.Seed + 1)),
		logger:    logger,
		initial:   Snapshot(online),
		lock:      new(sync.Mutex),
	}
	return p, nil
}

// NewGreedyPolicy wraps an estimator in a policy that always picks the best action and never learns
func NewGreedyPolicy(online Estimator) *Policy {
	return &Policy{
		online: online,
		greedy: true,
		rand:   rand.New(rand.NewSource(0)),
		logger: zerolog.Nop(),
		lock:   new(sync.Mutex),
	}
}

func (p *Policy) Online() Estimator {
	return p.online
}

func (p *Policy) Target() Estimator {
	return p.target
}

func (p *Policy) Buffer() *replay.Buffer {
	return p.buffer
}

// NextAction picks a random action with probability epsilon(frames), otherwise the argmax of the online estimator
func (p *Policy) NextAction(step int, state *types.Observation, actions int) (int, error) {
	if !p.greedy {
		eps := p.config.Epsilon.Value(p.frames)
		if p.rand.Float64() < eps {
			return p.rand.Intn(actions), nil
		}
	}
	return p.BestAction(state, actions)
}

// BestAction returns the action with the highest estimated value
func (p *Policy) BestAction(state *types.Observation, actions int) (int, error) {
	values, err := p.online.Evaluate(mat.NewDense(1, state.Size(), state.Data))
	if err != nil {
		return 0, err
	}
	if err := checkOutput(values, 1); err != nil {
		return 0, err
	}
	row := values.RawRowView(0)
	if len(row) != actions {
		return 0, fmt.Errorf("%w: %d values for %d actions", ErrInvalidEstimatorOutput, len(row), actions)
	}
	return floats.MaxIdx(row), nil
}

// Update stores the transition and runs a training step when enough transitions are available
func (p *Policy) Update(step int, state *types.Observation, action int, result types.StepResult) error {
	if p.greedy {
		return nil
	}
	p.frames++
	err := p.buffer.Push(replay.Transition{
		State:     state,
		Action:    action,
		Reward:    result.Reward,
		NextState: result.Next,
		Done:      result.Done,
	})
	if err != nil {
		return err
	}

	if p.buffer.Len() >= p.config.StartTrain && p.frames%p.config.TrainEvery == 0 {
		return p.train()
	}
	p.updateStats(func(s *Stats) {
		s.Frames = p.frames
		s.BufferLen = p.buffer.Len()
		s.Epsilon = p.config.Epsilon.Value(p.frames)
	})
	return nil
}

func (p *Policy) train() error {
	beta := p.config.Beta.Value(p.frames)
	batch, err := p.buffer.Sample(p.config.BatchSize, p.config.Alpha, beta)
	if err != nil {
		return err
	}
	res, err := p.loss.Compute(batch, p.online, p.target)
	if err != nil {
		return err
	}
	grads, err := p.online.Gradients(batch.States, res.OutputGrad)
	if err != nil {
		return err
	}
	if err := p.optimizer.Step(p.online.Parameters(), grads); err != nil {
		return err
	}
	if err := p.buffer.UpdatePriorities(batch.Indices, res.Priorities); err != nil {
		return err
	}
	p.updates++

	synced, err := p.config.Sync.Step(p.updates, p.target, p.online)
	if err != nil {
		return err
	}
	if synced {
		p.logger.Debug().Int("updates", p.updates).Str("mode", string(p.config.Sync.Mode)).Msg("target synchronized")
	}

	p.updateStats(func(s *Stats) {
		s.Frames = p.frames
		s.Updates = p.updates
		s.BufferLen = p.buffer.Len()
		s.Epsilon = p.config.Epsilon.Value(p.frames)
		s.Beta = beta
		s.LastLoss = res.Loss
		if synced {
			s.Syncs++
		}
	})
	return nil
}

// UpdateIteration records the episode outcome
func (p *Policy) UpdateIteration(episode int, trace *types.Trace) {
	if p.greedy {
		return
	}
	p.episodes++
	reward := trace.TotalReward()
	p.updateStats(func(s *Stats) {
		s.Episodes = p.episodes
		s.LastEpisodeReward = reward
		if s.Episodes == 1 || reward > s.BestEpisodeReward {
			s.BestEpisodeReward = reward
		}
	})
	p.logger.Debug().
		Int("episode", episode).
		Int("steps", trace.Len()).
		Float64("reward", reward).
		Float64("epsilon", p.config.Epsilon.Value(p.frames)).
		Msg("episode finished")
}

// Reset clears the buffer and counters and restores the initial estimator parameters
func (p *Policy) Reset() {
	if p.greedy {
		return
	}
	if err := Restore(p.online, p.initial); err != nil {
		panic(err)
	}
	if err := HardSync(p.target, p.online); err != nil {
		panic(err)
	}
	if r, ok := p.optimizer.(interface{ Reset() }); ok {
		r.Reset()
	}
	p.buffer = replay.NewBufferWithSeed(p.config.BufferCapacity, p.config.Seed)
	p.frames = 0
	p.updates = 0
	p.episodes = 0
	p.lock.Lock()
	p.stats = Stats{}
	p.lock.Unlock()
}

func (p *Policy) updateStats(f func(*Stats)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	f(&p.stats)
}

// Stats returns a copy of the current statistics, safe to call from other goroutines
func (p *Policy) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats
}
