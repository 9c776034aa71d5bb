package benchmarks

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/nn"
	"github.com/zeu5/lattice-fold-rl/storage"
	"github.com/zeu5/lattice-fold-rl/types"
)

func smallConfig(t *testing.T) config.Config {
	c := config.Default()
	c.Sequence = "HPPHPH"
	c.Episodes = 6
	c.Horizon = 30
	c.SavePath = t.TempDir()
	c.Env.MaxCollisions = 5
	c.Network.Hidden = []int{16}
	c.Agent.BufferCapacity = 100
	c.Agent.BatchSize = 4
	c.Agent.StartTrain = 8
	c.Agent.EpsilonDecay = 50
	c.Agent.BetaFrames = 100
	c.Agent.SyncEvery = 5
	c.Store.CheckpointEvery = 2
	require.NoError(t, c.Validate())
	return c
}

func newMemoryStore(t *testing.T) storage.Store {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestTrainRecordsAndCheckpoints(t *testing.T) {
	c := smallConfig(t)
	store := newMemoryStore(t)

	result, err := Train(context.Background(), TrainOptions{
		Config: c,
		Store:  store,
		Logger: zerolog.Nop(),
		Quiet:  true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{result.RunID}, result.CheckpointIDs)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 6, result.Results[0].ValidEpisodes)

	savePath := path.Join(c.SavePath, result.RunID)
	_, err = os.Stat(path.Join(savePath, "config.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(path.Join(savePath, "0_reward.json"))
	assert.NoError(t, err)

	f, err := os.Open(path.Join(savePath, "episodes.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	records := make([]episodeRecord, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r episodeRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 6)
	for i, r := range records {
		assert.Equal(t, i, r.Episode)
		assert.Positive(t, r.Steps)
		assert.LessOrEqual(t, r.Energy, 0)
	}

	ctx := context.Background()
	checkpoint, err := store.LatestCheckpoint(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, 5, checkpoint.Episode)
	assert.Equal(t, "HPPHPH", checkpoint.Sequence)
	assert.Equal(t, result.Folder.Network.Weights(), checkpoint.Weights)

	history, err := store.GetRewardHistory(ctx, result.RunID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, r := range records {
		assert.Equal(t, r.Reward, history[i])
	}
}

func TestTrainSeveralRuns(t *testing.T) {
	c := smallConfig(t)
	c.Runs = 2
	c.Episodes = 3
	c.Store.CheckpointEvery = 0
	store := newMemoryStore(t)

	result, err := Train(context.Background(), TrainOptions{
		Config: c,
		RunID:  "fixed",
		Store:  store,
		Logger: zerolog.Nop(),
		Quiet:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed-0", "fixed-1"}, result.CheckpointIDs)
	for _, id := range result.CheckpointIDs {
		checkpoint, err := store.LatestCheckpoint(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 2, checkpoint.Episode)

		history, err := store.GetRewardHistory(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	}
	_, err = store.LatestCheckpoint(context.Background(), "fixed")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrainNeedsStore(t *testing.T) {
	_, err := Train(context.Background(), TrainOptions{Config: smallConfig(t), Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestEvaluateCheckpoint(t *testing.T) {
	c := smallConfig(t)
	store := newMemoryStore(t)
	result, err := Train(context.Background(), TrainOptions{
		Config: c,
		RunID:  "eval",
		Store:  store,
		Logger: zerolog.Nop(),
		Quiet:  true,
	})
	require.NoError(t, err)
	require.Equal(t, "eval", result.RunID)

	fold, err := Evaluate(context.Background(), store, "eval", "", c)
	require.NoError(t, err)
	assert.Equal(t, "eval", fold.CheckpointID)
	assert.Equal(t, "HPPHPH", fold.Sequence.String())
	assert.NotEmpty(t, fold.Positions)
	assert.NotEmpty(t, fold.Drawing)
	assert.LessOrEqual(t, fold.Energy, 0)

	// the network only fits sequences of the trained length
	_, err = Evaluate(context.Background(), store, "eval", "HPPH", c)
	assert.Error(t, err)

	_, err = Evaluate(context.Background(), store, "missing", "", c)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrainAndEvaluateConvNetwork(t *testing.T) {
	c := smallConfig(t)
	c.Network.Kind = nn.ConvKind
	c.Network.Channels = []int{4, 4}
	require.NoError(t, c.Validate())
	store := newMemoryStore(t)

	result, err := Train(context.Background(), TrainOptions{
		Config: c,
		RunID:  "conv",
		Store:  store,
		Logger: zerolog.Nop(),
		Quiet:  true,
	})
	require.NoError(t, err)
	require.IsType(t, &nn.ConvNet{}, result.Folder.Network)

	checkpoint, err := store.LatestCheckpoint(context.Background(), "conv")
	require.NoError(t, err)
	assert.Equal(t, nn.ConvKind, checkpoint.Weights.Kind)
	assert.Equal(t, result.Folder.Environment.ObservationShape(), checkpoint.Weights.Shape)

	fold, err := Evaluate(context.Background(), store, "conv", "", c)
	require.NoError(t, err)
	assert.NotEmpty(t, fold.Positions)

	_, err = Evaluate(context.Background(), store, "conv", "HPPH", c)
	assert.Error(t, err)
}

func TestCompareWithRandom(t *testing.T) {
	c := smallConfig(t)
	c.Episodes = 3
	results, err := Compare(context.Background(), c, zerolog.Nop(), true)
	require.NoError(t, err)
	require.Len(t, results, 2)

	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
		assert.Equal(t, 3, r.Episodes)
	}
	assert.True(t, names["dqn"])
	assert.True(t, names["random"])

	_, err = os.Stat(path.Join(c.SavePath, "compare_HPPHPH", "0_energy.png"))
	assert.NoError(t, err)
}

func TestSequencesCommand(t *testing.T) {
	root := GetRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetArgs([]string{"sequences"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "S1-1")
	assert.Contains(t, out.String(), "HPHPPHHPHPPHPHHPPHPH")
}

func TestSetupAppliesFlags(t *testing.T) {
	root := GetRootCommand()
	train, _, err := root.Find([]string{"train"})
	require.NoError(t, err)
	require.NoError(t, train.ParseFlags([]string{"-e", "12", "--store", "sqlite", "--checkpoint-every", "3", "--network", "conv"}))

	c, _, err := setup(train, "S1-2")
	require.NoError(t, err)
	assert.Equal(t, 12, c.Episodes)
	assert.Equal(t, "sqlite", c.Store.Kind)
	assert.Equal(t, 3, c.Store.CheckpointEvery)
	assert.Equal(t, nn.ConvKind, c.Network.Kind)
	assert.Equal(t, "S1-2", c.Sequence)

	_, _, err = setup(train, "HXP")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// backtrackPolicy steps right once and then keeps stepping back onto the occupied origin
type backtrackPolicy struct {
	types.RandomPolicy
}

func (p *backtrackPolicy) NextAction(step int, _ *types.Observation, _ int) (int, error) {
	if step == 0 {
		return lattice.ActionRight, nil
	}
	return lattice.ActionLeft, nil
}

func TestDefaultHorizonBoundsCollidingEpisodes(t *testing.T) {
	c := config.Default()
	c.Sequence = "HPPH"
	require.Equal(t, 0, c.Horizon)
	require.Equal(t, 0, c.Env.MaxCollisions)

	_, seq, err := lattice.Lookup(c.Sequence)
	require.NoError(t, err)
	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    1,
		Horizon:     c.EpisodeHorizon(seq.Len()),
		Policy:      &backtrackPolicy{},
		Environment: lattice.NewEnvironment(seq, c.Lattice()),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trace, err := agent.RunEpisode(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, config.StepsPerResidue*seq.Len(), trace.Len())
	last, _ := trace.Last()
	assert.False(t, last.Done)
	assert.Equal(t, 2, lastInfo[int](trace, lattice.InfoChainLength))
}

func TestTrainGreedyWithoutHorizon(t *testing.T) {
	c := smallConfig(t)
	c.Horizon = 0
	c.Env.MaxCollisions = 0
	c.Agent.EpsilonStart = 0
	c.Agent.EpsilonFinal = 0
	c.Episodes = 3
	require.NoError(t, c.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := Train(ctx, TrainOptions{
		Config: c,
		Store:  newMemoryStore(t),
		Logger: zerolog.Nop(),
		Quiet:  true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 3, result.Results[0].ValidEpisodes)
	assert.LessOrEqual(t, result.Results[0].Timesteps, 3*config.StepsPerResidue*6)
}
