package benchmarks

import (
	"context"
	"path"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/types"
)

// Compare runs the DQN folder next to a uniformly random baseline on fresh environments
func Compare(ctx context.Context, c config.Config, logger zerolog.Logger, quiet bool) ([]types.ExperimentResult, error) {
	folder, err := NewFolder(c, logger)
	if err != nil {
		return nil, err
	}
	savePath := path.Join(c.SavePath, "compare_"+folder.Name)

	comparison, err := types.NewComparison(&types.ComparisonConfig{
		Runs:        c.Runs,
		Episodes:    c.Episodes,
		Horizon:     c.EpisodeHorizon(folder.Sequence.Len()),
		RecordPath:  savePath,
		Parallelism: 2,
		Quiet:       quiet,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	addFoldAnalyses(comparison, savePath)

	comparison.AddExperiment(types.NewExperiment("dqn", folder.Policy, folder.Environment))
	comparison.AddExperiment(types.NewExperiment(
		"random",
		types.NewRandomPolicyWithSeed(c.Seed),
		lattice.NewEnvironment(folder.Sequence, c.Lattice()),
	))

	logger.Info().Str("sequence", folder.Name).Str("save", savePath).Msg("comparing")
	err = comparison.Run(ctx)
	return comparison.Results(), err
}

func CompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare [SEQUENCE|BENCHMARK]",
		Short: "Compare the DQN folder with a random policy",
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

			_, err = Compare(ctx, c, logger, quiet)
			return err
		},
	}
}
