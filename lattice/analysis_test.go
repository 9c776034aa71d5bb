package lattice

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/lattice-fold-rl/types"
)

func TestVisitsAnalyzer(t *testing.T) {
	env := newEnv(t, "HPPH", DefaultConfig())
	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    1,
		Horizon:     10,
		Policy:      types.NewRandomPolicyWithSeed(1),
		Environment: env,
	})
	trace, err := agent.RunEpisode(context.Background(), 0)
	require.NoError(t, err)

	a := VisitsAnalyzer()
	a.Analyze(0, 0, "random", trace)
	ds := a.DataSet().(*VisitsDataSet)
	assert.Equal(t, 9, ds.Width)
	assert.Equal(t, trace.Len(), ds.Total())

	a.Reset()
	assert.Equal(t, 0, a.DataSet().(*VisitsDataSet).Total())
}

func TestVisitsFollowHead(t *testing.T) {
	env := newEnv(t, "HPPH", DefaultConfig())
	_, err := env.Reset()
	require.NoError(t, err)
	trace := types.NewTrace()
	for _, action := range []int{ActionRight, ActionUp, ActionLeft} {
		result, err := env.Step(action)
		require.NoError(t, err)
		trace.Append(nil, action, result)
	}

	a := VisitsAnalyzer()
	a.Analyze(0, 0, "fold", trace)
	ds := a.DataSet().(*VisitsDataSet)
	// (1, 0), (1, 1) and (0, 1) with the origin at row 4, column 4
	assert.Equal(t, 1, ds.Visits[4][5])
	assert.Equal(t, 1, ds.Visits[3][5])
	assert.Equal(t, 1, ds.Visits[3][4])
	assert.Equal(t, 0, ds.Visits[4][4])

	// plotted upside down so that y grows upwards
	assert.Equal(t, 1.0, ds.Z(5, 4))
	assert.Equal(t, 1.0, ds.Z(5, 5))
	assert.Equal(t, 1.0, ds.X(5))
	assert.Equal(t, 1.0, ds.Y(5))

	dir := t.TempDir()
	require.NoError(t, VisitsComparator(dir)(0, []string{"fold"}, []types.DataSet{ds}))
	_, err = os.Stat(path.Join(dir, "0_fold_visits.json"))
	assert.NoError(t, err)
	_, err = os.Stat(path.Join(dir, "0_fold_visits.png"))
	assert.NoError(t, err)
}
