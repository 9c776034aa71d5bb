package dqn

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/lattice-fold-rl/types"
	"gonum.org/v1/gonum/mat"
)

// walk along a line of cells, action 1 moves right, action 0 stays
type lineEnv struct {
	cells int
	pos   int
}

func (l *lineEnv) observe() *types.Observation {
	data := make([]float64, l.cells)
	data[l.pos] = 1
	return types.NewObservation([]int{l.cells}, data)
}

func (l *lineEnv) Reset() (*types.Observation, error) {
	l.pos = 0
	return l.observe(), nil
}

func (l *lineEnv) Step(action int) (types.StepResult, error) {
	if action == 1 {
		l.pos++
	}
	done := l.pos == l.cells-1
	reward := -0.1
	if done {
		reward = 1
	}
	return types.StepResult{Next: l.observe(), Reward: reward, Done: done}, nil
}

func (l *lineEnv) ActionSpaceSize() int { return 2 }

func (l *lineEnv) ObservationShape() []int { return []int{l.cells} }

func testConfig() Config {
	return Config{
		BufferCapacity: 100,
		BatchSize:      8,
		Alpha:          0.6,
		StartTrain:     20,
		TrainEvery:     1,
		Gamma:          0.9,
		Epsilon:        EpsilonSchedule{Start: 1, Final: 0.05, Decay: 50},
		Beta:           BetaSchedule{Start: 0.4, Frames: 200},
		Sync:           TargetSynchronizer{Mode: HardSyncMode, Every: 10},
		Seed:           7,
	}
}

func TestPolicyConfigValidation(t *testing.T) {
	bad := testConfig()
	bad.Epsilon.Decay = 0
	_, err := NewPolicy(bad, newLinearEstimator(4, 2, 0.1), newLinearEstimator(4, 2, 0), sgd{rate: 0.01}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidScheduleParameter)

	bad = testConfig()
	bad.BatchSize = 0
	_, err = NewPolicy(bad, newLinearEstimator(4, 2, 0.1), newLinearEstimator(4, 2, 0), sgd{rate: 0.01}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPolicyTargetStartsSynced(t *testing.T) {
	online := newLinearEstimator(4, 2, 0.1)
	target := newLinearEstimator(4, 2, 0)
	_, err := NewPolicy(testConfig(), online, target, sgd{rate: 0.01}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, mat.Equal(online.w, target.w))
}

func TestPolicyTrainsAfterStartTrain(t *testing.T) {
	online := newLinearEstimator(4, 2, 0.1)
	target := newLinearEstimator(4, 2, 0)
	policy, err := NewPolicy(testConfig(), online, target, sgd{rate: 0.01}, zerolog.Nop())
	require.NoError(t, err)
	env := &lineEnv{cells: 4}

	state, err := env.Reset()
	require.NoError(t, err)
	initial := mat.DenseCopyOf(online.w)
	for i := 0; i < 19; i++ {
		action, err := policy.NextAction(i, state, 2)
		require.NoError(t, err)
		result, err := env.Step(action)
		require.NoError(t, err)
		require.NoError(t, policy.Update(i, state, action, result))
		state = result.Next
		if result.Done {
			state, _ = env.Reset()
		}
	}
	assert.Equal(t, 0, policy.Stats().Updates)
	assert.Equal(t, 19, policy.Stats().Frames)
	assert.True(t, mat.Equal(initial, online.w))
	for _, p := range policy.Buffer().Priorities() {
		assert.Equal(t, 1.0, p)
	}

	action, err := policy.NextAction(19, state, 2)
	require.NoError(t, err)
	result, err := env.Step(action)
	require.NoError(t, err)
	require.NoError(t, policy.Update(19, state, action, result))

	stats := policy.Stats()
	assert.Equal(t, 1, stats.Updates)
	assert.Equal(t, 20, stats.BufferLen)
	assert.InDelta(t, 0.4+20*0.6/200, stats.Beta, 1e-12)
	assert.False(t, mat.Equal(initial, online.w))

	changed := false
	for _, p := range policy.Buffer().Priorities() {
		assert.Greater(t, p, 0.0)
		if p != 1.0 {
			changed = true
		}
	}
	assert.True(t, changed)
}

func TestPolicyWithAgent(t *testing.T) {
	online := newLinearEstimator(4, 2, 0.1)
	target := newLinearEstimator(4, 2, 0)
	policy, err := NewPolicy(testConfig(), online, target, sgd{rate: 0.01}, zerolog.Nop())
	require.NoError(t, err)

	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    30,
		Horizon:     20,
		Policy:      policy,
		Environment: &lineEnv{cells: 4},
	})
	traces, err := agent.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, traces, 30)

	frames := 0
	best := traces[0].TotalReward()
	for _, trace := range traces {
		frames += trace.Len()
		if r := trace.TotalReward(); r > best {
			best = r
		}
	}
	stats := policy.Stats()
	assert.Equal(t, 30, stats.Episodes)
	assert.Equal(t, frames, stats.Frames)
	assert.Equal(t, frames-testConfig().StartTrain+1, stats.Updates)
	assert.Equal(t, stats.Updates/10, stats.Syncs)
	assert.Equal(t, traces[29].TotalReward(), stats.LastEpisodeReward)
	assert.Equal(t, best, stats.BestEpisodeReward)
	assert.Less(t, stats.Epsilon, 1.0)
}

func TestPolicyReset(t *testing.T) {
	online := newLinearEstimator(4, 2, 0.1)
	target := newLinearEstimator(4, 2, 0)
	policy, err := NewPolicy(testConfig(), online, target, sgd{rate: 0.05}, zerolog.Nop())
	require.NoError(t, err)
	initial := mat.DenseCopyOf(online.w)

	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    10,
		Horizon:     20,
		Policy:      policy,
		Environment: &lineEnv{cells: 4},
	})
	_, err = agent.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, policy.Stats().Updates, 0)

	policy.Reset()
	assert.True(t, mat.Equal(initial, online.w))
	assert.True(t, mat.Equal(initial, target.w))
	assert.Equal(t, 0, policy.Buffer().Len())
	assert.Equal(t, Stats{}, policy.Stats())
}

func TestGreedyPolicy(t *testing.T) {
	estimator := &linearEstimator{
		w: mat.NewDense(2, 3, []float64{
			0, 1, 0,
			0, 0, 2,
		}),
		b: mat.NewDense(1, 3, nil),
	}
	policy := NewGreedyPolicy(estimator)

	a, err := policy.NextAction(0, types.NewObservation([]int{2}, []float64{1, 0}), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	a, err = policy.NextAction(0, types.NewObservation([]int{2}, []float64{0, 1}), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, a)

	_, err = policy.NextAction(0, types.NewObservation([]int{2}, []float64{0, 1}), 4)
	assert.ErrorIs(t, err, ErrInvalidEstimatorOutput)

	// greedy policies never learn
	require.NoError(t, policy.Update(0, types.NewObservation([]int{2}, []float64{0, 1}), 2, types.StepResult{}))
	assert.Equal(t, Stats{}, policy.Stats())
}
