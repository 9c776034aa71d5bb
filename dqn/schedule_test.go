package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpsilonSchedule(t *testing.T) {
	s, err := NewEpsilonSchedule(1.0, 0.01, 500)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.Value(0), 1e-12)
	prev := s.Value(0)
	for step := 1; step < 5000; step += 97 {
		v := s.Value(step)
		assert.Less(t, v, prev)
		assert.Greater(t, v, 0.01)
		prev = v
	}
	assert.InDelta(t, 0.01, s.Value(100000), 1e-9)
	assert.InDelta(t, 0.01+0.99*0.36787944117144233, s.Value(500), 1e-12)
}

func TestBetaSchedule(t *testing.T) {
	s, err := NewBetaSchedule(0.4, 1000)
	require.NoError(t, err)

	assert.Equal(t, 0.4, s.Value(0))
	assert.InDelta(t, 0.7, s.Value(500), 1e-12)
	assert.Equal(t, 1.0, s.Value(1000))
	for _, step := range []int{1001, 5000, 1 << 20} {
		assert.Equal(t, 1.0, s.Value(step))
	}

	prev := s.Value(0)
	for step := 1; step <= 1000; step++ {
		v := s.Value(step)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestInvalidScheduleParameters(t *testing.T) {
	_, err := NewEpsilonSchedule(1, 0.1, 0)
	assert.ErrorIs(t, err, ErrInvalidScheduleParameter)
	_, err = NewEpsilonSchedule(1, 0.1, -3)
	assert.ErrorIs(t, err, ErrInvalidScheduleParameter)
	_, err = NewBetaSchedule(0.4, 0)
	assert.ErrorIs(t, err, ErrInvalidScheduleParameter)
}
