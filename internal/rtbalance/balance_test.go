package rtbalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinCyclesAndSkipsDead(t *testing.T) {
	rr := NewRoundRobin()
	candidates := []WorkerStatus{{ID: 0, Alive: true}, {ID: 1, Alive: false}, {ID: 2, Alive: true}}

	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		idx, err := rr.Pick(candidates)
		require.Nil(t, err)
		assert.True(t, candidates[idx].Alive)
		seen[idx] = true
	}
	assert.False(t, seen[1], "dead worker must never be picked")
}

func TestLeastBusyPicksLowestLoad(t *testing.T) {
	lb := NewLeastBusy()
	candidates := []WorkerStatus{
		{ID: 0, Alive: true, Load: 80},
		{ID: 1, Alive: true, Load: 10},
		{ID: 2, Alive: false, Load: 0},
	}
	idx, err := lb.Pick(candidates)
	require.Nil(t, err)
	assert.Equal(t, 1, idx)
}

func TestWeightedFavorsLessLoadedWorkers(t *testing.T) {
	w := NewWeighted(42)
	candidates := []WorkerStatus{
		{ID: 0, Alive: true, Load: 0},
		{ID: 1, Alive: true, Load: 95},
	}
	counts := map[int]int{}
	for i := 0; i < 500; i++ {
		idx, err := w.Pick(candidates)
		require.Nil(t, err)
		counts[idx]++
	}
	assert.Greater(t, counts[0], counts[1])
}

func TestAllNoAliveWorkersStillReturnsAnIndexButErrors(t *testing.T) {
	candidates := []WorkerStatus{{ID: 0, Alive: false}, {ID: 1, Alive: false}}
	for _, s := range []Strategy{NewRoundRobin(), NewLeastBusy(), NewWeighted(1)} {
		_, err := s.Pick(candidates)
		require.NotNil(t, err)
	}
}
