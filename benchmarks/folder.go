package benchmarks

import (
	"github.com/rs/zerolog"
	"github.com/zeu5/lattice-fold-rl/config"
	"github.com/zeu5/lattice-fold-rl/dqn"
	"github.com/zeu5/lattice-fold-rl/lattice"
	"github.com/zeu5/lattice-fold-rl/nn"
	"github.com/zeu5/lattice-fold-rl/types"
)

// Folder bundles a lattice environment with the DQN policy learning to fold it
type Folder struct {
	Name        string
	Sequence    lattice.Sequence
	Environment *lattice.Environment
	Network     nn.Network
	Policy      *dqn.Policy
}

func NewFolder(c config.Config, logger zerolog.Logger) (*Folder, error) {
	name, seq, err := lattice.Lookup(c.Sequence)
	if err != nil {
		return nil, err
	}
	env := lattice.NewEnvironment(seq, c.Lattice())

	online, err := c.NewNetwork(env.ObservationShape(), env.ActionSpaceSize())
	if err != nil {
		return nil, err
	}
	target, err := nn.Clone(online)
	if err != nil {
		return nil, err
	}
	policy, err := dqn.NewPolicy(c.DQN(), online, target, c.Optimizer(), logger)
	if err != nil {
		return nil, err
	}
	return &Folder{
		Name:        name,
		Sequence:    seq,
		Environment: env,
		Network:     online,
		Policy:      policy,
	}, nil
}

// addFoldAnalyses registers the reward, energy and visit analyses shared by the commands
func addFoldAnalyses(c *types.Comparison, savePath string) {
	c.AddAnalysis("reward", types.RewardAnalyzer, types.Comparators(
		types.LinePlotComparator(savePath, "reward", "Episode reward"),
		types.JSONComparator(savePath, "reward"),
		types.SummaryComparator("reward", 100),
	))
	c.AddAnalysis("energy", func() types.Analyzer { return types.InfoAnalyzer(lattice.InfoEnergy) }, types.Comparators(
		types.LinePlotComparator(savePath, "energy", "Final energy"),
		types.JSONComparator(savePath, "energy"),
		types.SummaryComparator("energy", 100),
	))
	c.AddAnalysis("best_energy", func() types.Analyzer { return types.MinInfoAnalyzer(lattice.InfoEnergy) }, types.Comparators(
		types.LinePlotComparator(savePath, "best_energy", "Lowest energy so far"),
		types.JSONComparator(savePath, "best_energy"),
	))
	c.AddAnalysis("visits", lattice.VisitsAnalyzer, lattice.VisitsComparator(savePath))
}
