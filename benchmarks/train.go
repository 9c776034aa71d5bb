package benchmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/monitor"
	"github.com/zeu5/lattice-fold-rl/storage"
	"github.com/zeu5/lattice-fold-rl/types"
	"github.com/zeu5/lattice-fold-rl/util"
)

type TrainOptions struct {
	Config config.Config
	// generated when empty
	RunID string
	// must be initialized
	Store  storage.Store
	Logger zerolog.Logger
	Quiet  bool
}

type TrainResult struct {
	RunID string
	// checkpoint id of every run
	CheckpointIDs []string
	Results       []types.ExperimentResult
	Folder        *Folder
}

// episodeRecord is one line of episodes.jsonl
type episodeRecord struct {
	Run         int     `json:"run"`
	Episode     int     `json:"episode"`
	Steps       int     `json:"steps"`
	Reward      float64 `json:"reward"`
	Energy      int     `json:"energy"`
	ChainLength int     `json:"chain_length"`
	Trapped     bool    `json:"trapped"`
	Epsilon     float64 `json:"epsilon"`
	Loss        float64 `json:"loss"`
}

func checkpointID(runID string, run, runs int) string {
	if runs <= 1 {
		return runID
	}
	return fmt.Sprintf("%s-%d", runID, run)
}

func lastInfo[T any](trace *types.Trace, key string) T {
	var zero T
	v, ok := trace.LastInfo(key)
	if !ok {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		return zero
	}
	return t
}

// Train runs the DQN folder for the configured runs, recording every episode and
// saving checkpoints and reward histories to the store
func Train(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	c := opts.Config
	if opts.Store == nil {
		return nil, errors.New("train requires a store")
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := opts.Logger.With().Str("run_id", runID).Logger()

	folder, err := NewFolder(c, logger)
	if err != nil {
		return nil, err
	}
	savePath := path.Join(c.SavePath, runID)
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := util.WriteToFile(path.Join(savePath, "config.txt"), "run: "+runID, "sequence: "+folder.Sequence.String(), string(configJSON)); err != nil {
		return nil, err
	}

	if c.Monitor.Addr != "" {
		server := monitor.NewServer(c.Monitor.Addr, runID, folder.Policy, logger)
		monitorCtx, cancel := context.WithCancel(ctx)
		defer func() {
			cancel()
			server.Wait()
		}()
		if err := server.Start(monitorCtx); err != nil {
			return nil, fmt.Errorf("starting monitor: %w", err)
		}
	}

	result := &TrainResult{RunID: runID, Folder: folder}
	for run := 0; run < c.Runs; run++ {
		result.CheckpointIDs = append(result.CheckpointIDs, checkpointID(runID, run, c.Runs))
	}

	lock := new(sync.Mutex)
	rewards := make([]float64, 0, c.Episodes)
	recordPath := path.Join(savePath, "episodes.jsonl")

	record := func(run, episode int, _ string, trace *types.Trace) error {
		stats := folder.Policy.Stats()
		reward := trace.TotalReward()
		if err := util.AppendJSONLine(recordPath, episodeRecord{
			Run:         run,
			Episode:     episode,
			Steps:       trace.Len(),
			Reward:      reward,
			Energy:      lastInfo[int](trace, lattice.InfoEnergy),
			ChainLength: lastInfo[int](trace, lattice.InfoChainLength),
			Trapped:     lastInfo[bool](trace, lattice.InfoTrapped),
			Epsilon:     stats.Epsilon,
			Loss:        stats.LastLoss,
		}); err != nil {
			return err
		}

		lock.Lock()
		if episode == 0 {
			rewards = rewards[:0]
		}
		rewards = append(rewards, reward)
		history := append([]float64(nil), rewards...)
		lock.Unlock()

		last := episode == c.Episodes-1
		every := c.Store.CheckpointEvery
		if !last && (every == 0 || (episode+1)%every != 0) {
			return nil
		}
		id := checkpointID(runID, run, c.Runs)
		checkpoint := storage.NewCheckpoint(id, folder.Sequence.String(), episode, folder.Network.Weights(), stats)
		if err := opts.Store.SaveCheckpoint(ctx, checkpoint); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		if err := opts.Store.SaveRewardHistory(ctx, id, history); err != nil {
			return fmt.Errorf("saving reward history: %w", err)
		}
		logger.Debug().Str("checkpoint", id).Int("episode", episode).Msg("saved checkpoint")
		return nil
	}

	comparison, err := types.NewComparison(&types.ComparisonConfig{
		Runs:         c.Runs,
		Episodes:     c.Episodes,
		Horizon:      c.EpisodeHorizon(folder.Sequence.Len()),
		RecordPath:   savePath,
		RecordTraces: false,
		Quiet:        opts.Quiet,
		Callbacks:    []types.EpisodeCallback{record},
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	addFoldAnalyses(comparison, savePath)
	comparison.AddExperiment(types.NewExperiment("dqn", folder.Policy, folder.Environment))

	logger.Info().
		Str("sequence", folder.Name).
		Int("length", folder.Sequence.Len()).
		Int("episodes", c.Episodes).
		Int("runs", c.Runs).
		Msg("training")
	err = comparison.Run(ctx)
	result.Results = comparison.Results()
	if err != nil {
		return result, err
	}

	stats := folder.Policy.Stats()
	logger.Info().
		Int("frames", stats.Frames).
		Int("updates", stats.Updates).
		Float64("best_reward", stats.BestEpisodeReward).
		Msg("training finished")
	return result, nil
}

func TrainCommand() *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "train [SEQUENCE|BENCHMARK]",
		Short: "Train the DQN folder on a sequence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup(cmd, sequenceArg(args, 0))
			if err != nil {
				return err
			}
			ctx, cancel := interruptContext()
			defer cancel()

			stopProfiling, err := startProfiling(c.SavePath, logger)
			if err != nil {
				return err
			}
			defer stopProfiling()

			store, err := storage.NewStore(c.Store.Kind, c.Store.Target)
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			result, err := Train(ctx, TrainOptions{
				Config: c,
				Store:  store,
				Logger: logger,
				Quiet:  quiet,
			})
			if result != nil {
				fmt.Printf("run id: %s\n", result.RunID)
			}
			return err
		},
	}
	cmd.Flags().String("store", defaults.Store.Kind, "Checkpoint store (memory, sqlite, redis)")
	cmd.Flags().String("store-target", defaults.Store.Target, "Sqlite database file or redis address")
	cmd.Flags().Int("checkpoint-every", defaults.Store.CheckpointEvery, "Episodes between checkpoints, 0 only saves the last episode")
	cmd.Flags().String("monitor", defaults.Monitor.Addr, "Serve training stats on this address")
	return cmd
}
