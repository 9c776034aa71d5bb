package benchmarks

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/util"
)

var (
	configPath string
	quiet      bool
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "fold",
		Short:         "Deep Q-learning for protein folding on the 2D HP lattice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaults := config.Default()
	rootCommand.PersistentFlags().IntP("episodes", "e", defaults.Episodes, "Number of episodes to run")
	rootCommand.PersistentFlags().Int("horizon", defaults.Horizon, "Horizon of each episode, 0 allows 4 steps per residue")
	rootCommand.PersistentFlags().StringP("save", "s", defaults.SavePath, "Save the result data in the specified folder")
	rootCommand.PersistentFlags().Int("runs", defaults.Runs, "Number of experiment runs")
	rootCommand.PersistentFlags().Uint64("seed", defaults.Seed, "Seed of the network initialization and the exploration")
	rootCommand.PersistentFlags().String("network", defaults.Network.Kind, "Q network kind (mlp, conv)")
	rootCommand.PersistentFlags().String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, json or toml)")
	rootCommand.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable the progress printer")
	rootCommand.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write a cpu profile to this file in the save folder")
	rootCommand.PersistentFlags().StringVar(&memprofile, "memprofile", "", "Write a heap profile to this file in the save folder")

	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(CompareCommand())
	rootCommand.AddCommand(EvaluateCommand())
	rootCommand.AddCommand(SequencesCommand())
	return rootCommand
}

// setup loads the configuration with the flags of cmd and the sequence argument when present
func setup(cmd *cobra.Command, sequence string) (config.Config, zerolog.Logger, error) {
	c, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if sequence != "" {
		c.Sequence = sequence
		if err := c.Validate(); err != nil {
			return config.Config{}, zerolog.Nop(), err
		}
	}
	logger, err := util.NewLogger(c.LogLevel, c.PrettyLogs)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return c, logger, nil
}

// interruptContext is cancelled on the first interrupt
func interruptContext() (context.Context, context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
		cancel()
	}()
	return ctx, cancel
}

func sequenceArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}
