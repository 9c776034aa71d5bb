package benchmarks

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/lattice-fold-rl/lattice"
)

func SequencesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sequences",
		Short: "List the built in benchmark sequences",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range lattice.BenchmarkNames() {
				b := lattice.Benchmarks[name]
				fmt.Fprintf(out, "%-5s len=%-3d best=%-4d %s\n", b.Name, len(b.Sequence), b.BestEnergy, b.Sequence)
			}
		},
	}
}
