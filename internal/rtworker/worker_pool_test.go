package rtworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rtbalance"
	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtregistry"
)

func newTestPool(t *testing.T, workerCount int) (*Pool, *rtregistry.FunctionRegistry) {
	reg := rtregistry.NewFunctionRegistry(nil)
	pool, verr := NewPool(workerCount, reg, rtbalance.NewRoundRobin())
	require.Nil(t, verr)
	require.Nil(t, pool.Start(workerCount))
	t.Cleanup(pool.Stop)
	return pool, reg
}

func TestExecuteRoutesThroughRegisteredFunction(t *testing.T) {
	pool, reg := newTestPool(t, 2)
	_, _ = reg.Register("double", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		return args.(int) * 2, nil
	}, nil)

	v, err := pool.Execute(rtctx.Background(), "double", 21, time.Second)
	require.Nil(t, err)
	assert.Equal(t, 42, v)
}

func TestExecuteSurfacesFunctionError(t *testing.T) {
	pool, reg := newTestPool(t, 1)
	_, _ = reg.Register("boom", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		return nil, rterr.New(rterr.CodeWorkerDied)
	}, nil)

	_, err := pool.Execute(rtctx.Background(), "boom", nil, time.Second)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeWorkerDied, err.Code)
}

func TestExecuteUnknownFunctionFails(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	_, err := pool.Execute(rtctx.Background(), "missing", nil, time.Second)
	require.NotNil(t, err)
}

func TestExecuteSurvivesWorkerPanic(t *testing.T) {
	pool, reg := newTestPool(t, 1)
	_, _ = reg.Register("panics", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		panic("kaboom")
	}, nil)

	_, err := pool.Execute(rtctx.Background(), "panics", nil, time.Second)
	require.NotNil(t, err)

	_, _ = reg.Register("fine", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		return "still alive", nil
	}, nil)
	v, err2 := pool.Execute(rtctx.Background(), "fine", nil, time.Second)
	require.Nil(t, err2)
	assert.Equal(t, "still alive", v)
}

func TestExecuteTimesOutOnSlowFunction(t *testing.T) {
	pool, reg := newTestPool(t, 1)
	_, _ = reg.Register("slow", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	_, err := pool.Execute(rtctx.Background(), "slow", nil, 20*time.Millisecond)
	require.NotNil(t, err)
}

func TestStopIsIdempotentAndDrainsCleanly(t *testing.T) {
	reg := rtregistry.NewFunctionRegistry(nil)
	pool, verr := NewPool(2, reg, nil)
	require.Nil(t, verr)
	require.Nil(t, pool.Start(2))
	pool.Stop()
	pool.Stop()
	assert.True(t, pool.IsStarted())
}

func TestWorkerCountAndStatuses(t *testing.T) {
	pool, _ := newTestPool(t, 3)
	assert.Equal(t, 3, pool.WorkerCount())
	statuses := pool.Statuses()
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Alive)
	}
}
