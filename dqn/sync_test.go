package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHardSync(t *testing.T) {
	online := newLinearEstimator(3, 2, 0.7)
	target := newLinearEstimator(3, 2, -0.2)
	online.b.Set(0, 1, 3.25)

	require.NoError(t, HardSync(target, online))
	assert.True(t, mat.Equal(online.w, target.w))
	assert.True(t, mat.Equal(online.b, target.b))

	// target does not alias the online parameters
	online.w.Set(0, 0, 100)
	assert.NotEqual(t, 100.0, target.w.At(0, 0))

	// idempotent
	require.NoError(t, HardSync(target, online))
	require.NoError(t, HardSync(target, online))
	assert.True(t, mat.Equal(online.w, target.w))
}

func TestSoftSyncExtremes(t *testing.T) {
	online := newLinearEstimator(3, 2, 0.7)
	target := newLinearEstimator(3, 2, -0.2)
	before := Snapshot(target)

	require.NoError(t, SoftSync(target, online, 0))
	assert.True(t, mat.Equal(before[0], target.w))
	assert.True(t, mat.Equal(before[1], target.b))

	require.NoError(t, SoftSync(target, online, 1))
	assert.True(t, mat.Equal(online.w, target.w))
	assert.True(t, mat.Equal(online.b, target.b))
}

func TestSoftSyncAverage(t *testing.T) {
	online := newLinearEstimator(2, 2, 1)
	target := newLinearEstimator(2, 2, 0)
	expected := mat.NewDense(2, 2, nil)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			expected.Set(i, j, 0.25*online.w.At(i, j)+0.75*target.w.At(i, j))
		}
	}
	require.NoError(t, SoftSync(target, online, 0.25))
	assert.True(t, mat.EqualApprox(expected, target.w, 1e-12))

	// converges to the online parameters when repeated
	for i := 0; i < 200; i++ {
		require.NoError(t, SoftSync(target, online, 0.25))
	}
	assert.True(t, mat.EqualApprox(online.w, target.w, 1e-9))
}

func TestSoftSyncInvalidTau(t *testing.T) {
	online := newLinearEstimator(2, 2, 1)
	target := newLinearEstimator(2, 2, 0)
	assert.Error(t, SoftSync(target, online, 1.5))
	assert.Error(t, SoftSync(target, online, -0.1))
}

func TestSyncSkipsAliasedParameters(t *testing.T) {
	online := newLinearEstimator(2, 2, 1)
	target := &linearEstimator{w: online.w, b: mat.NewDense(1, 2, []float64{5, 5})}
	w := mat.DenseCopyOf(online.w)

	require.NoError(t, SoftSync(target, online, 0.5))
	assert.True(t, mat.Equal(w, online.w))
	assert.Equal(t, []float64{2.5, 2.5}, target.b.RawRowView(0))

	require.NoError(t, HardSync(target, online))
	assert.True(t, mat.Equal(w, online.w))
}

func TestSyncParameterMismatch(t *testing.T) {
	online := newLinearEstimator(3, 2, 1)
	target := newLinearEstimator(2, 2, 0)
	assert.ErrorIs(t, HardSync(target, online), ErrParameterMismatch)
	assert.ErrorIs(t, SoftSync(target, online, 0.5), ErrParameterMismatch)
	assert.ErrorIs(t, Restore(target, Snapshot(online)), ErrParameterMismatch)
}

func TestTargetSynchronizerInterval(t *testing.T) {
	online := newLinearEstimator(2, 2, 1)
	target := newLinearEstimator(2, 2, 0)
	s := TargetSynchronizer{Mode: HardSyncMode, Every: 3}
	require.NoError(t, s.Validate())

	synced, err := s.Step(1, target, online)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.False(t, mat.Equal(online.w, target.w))

	synced, err = s.Step(3, target, online)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.True(t, mat.Equal(online.w, target.w))
}

func TestTargetSynchronizerValidate(t *testing.T) {
	assert.Error(t, TargetSynchronizer{Mode: "lazy", Every: 1}.Validate())
	assert.Error(t, TargetSynchronizer{Mode: HardSyncMode, Every: 0}.Validate())
	assert.Error(t, TargetSynchronizer{Mode: SoftSyncMode, Every: 1, Tau: 2}.Validate())
	assert.NoError(t, TargetSynchronizer{Mode: SoftSyncMode, Every: 1, Tau: 0.01}.Validate())
}

func TestSyncModeNames(t *testing.T) {
	// the modes are constants so config values compare against fixed names
	const hard, soft = HardSyncMode, SoftSyncMode
	assert.Equal(t, SyncMode("hard"), hard)
	assert.Equal(t, SyncMode("soft"), soft)
}
