package benchmarks

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/dqn"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/nn"
	"github.com/zeu5/lattice-fold-rl/storage"
	"github.com/zeu5/lattice-fold-rl/types"
)

// Fold is the greedy fold produced by a checkpoint
type Fold struct {
	CheckpointID string
	Episode      int
	Sequence     lattice.Sequence
	Positions    []lattice.Position
	Complete     bool
	Energy       int
	Reward       float64
	Drawing      string
}

// Evaluate restores the latest checkpoint of runID and folds the sequence greedily.
// The sequence of the checkpoint is used when sequence is empty.
func Evaluate(ctx context.Context, store storage.Store, runID, sequence string, c config.Config) (*Fold, error) {
	checkpoint, err := store.LatestCheckpoint(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", runID, err)
	}
	if sequence == "" {
		sequence = checkpoint.Sequence
	}
	_, seq, err := lattice.Lookup(sequence)
	if err != nil {
		return nil, err
	}

	network, err := nn.FromWeights(checkpoint.Weights)
	if err != nil {
		return nil, err
	}
	env := lattice.NewEnvironment(seq, c.Lattice())
	inputs := 1
	for _, d := range env.ObservationShape() {
		inputs *= d
	}
	if network.Inputs() != inputs || network.Outputs() != env.ActionSpaceSize() {
		return nil, fmt.Errorf("checkpoint %s network %v does not fit a sequence of length %d", checkpoint.Weights.Kind, checkpoint.Weights.Sizes, seq.Len())
	}

	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    1,
		Horizon:     c.EpisodeHorizon(seq.Len()),
		Policy:      dqn.NewGreedyPolicy(network),
		Environment: env,
	})
	trace, err := agent.RunEpisode(ctx, 0)
	if err != nil {
		return nil, err
	}

	return &Fold{
		CheckpointID: checkpoint.RunID,
		Episode:      checkpoint.Episode,
		Sequence:     seq,
		Positions:    env.Positions(),
		Complete:     env.Complete(),
		Energy:       env.Energy(),
		Reward:       trace.TotalReward(),
		Drawing:      env.Render(),
	}, nil
}

func EvaluateCommand() *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "evaluate RUN_ID [SEQUENCE|BENCHMARK]",
		Short: "Fold a sequence greedily with the latest checkpoint of a run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(cmd, "")
			if err != nil {
				return err
			}
			ctx, cancel := interruptContext()
			defer cancel()

			store, err := storage.NewStore(c.Store.Kind, c.Store.Target)
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			fold, err := Evaluate(ctx, store, args[0], sequenceArg(args, 1), c)
			if err != nil {
				return err
			}
			fmt.Printf("checkpoint %s at episode %d\n", fold.CheckpointID, fold.Episode)
			fmt.Printf("sequence: %s\n", fold.Sequence)
			fmt.Println(fold.Drawing)
			if !fold.Complete {
				fmt.Printf("incomplete fold: %d of %d residues placed\n", len(fold.Positions), fold.Sequence.Len())
			}
			fmt.Printf("energy: %d\n", fold.Energy)
			for _, b := range lattice.Benchmarks {
				if b.Sequence == fold.Sequence.String() {
					fmt.Printf("best known energy of %s: %d\n", b.Name, b.BestEnergy)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("store", defaults.Store.Kind, "Checkpoint store (memory, sqlite, redis)")
	cmd.Flags().String("store-target", defaults.Store.Target, "Sqlite database file or redis address")
	return cmd
}
