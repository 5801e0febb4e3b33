package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rtroutine"
)

func resetSingleton(t *testing.T) {
	t.Cleanup(func() {
		if s, ok := Get(); ok {
			s.Shutdown(rtctx.Background())
		}
	})
}

func TestInitializeRejectsSecondConcurrentScheduler(t *testing.T) {
	resetSingleton(t)
	s1, err := Initialize(Options{})
	require.Nil(t, err)
	defer s1.Shutdown(rtctx.Background())

	_, err = Initialize(Options{})
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeSchedulerState, err.Code)
}

func TestInitializeAgainAfterShutdown(t *testing.T) {
	resetSingleton(t)
	s1, err := Initialize(Options{})
	require.Nil(t, err)
	require.Nil(t, s1.Shutdown(rtctx.Background()))

	s2, err := Initialize(Options{})
	require.Nil(t, err)
	assert.Equal(t, StateInitialized, s2.State())
}

func TestGoDispatchesInProcessAndTracksHandle(t *testing.T) {
	resetSingleton(t)
	s, err := Initialize(Options{})
	require.Nil(t, err)

	h := s.Go(rtctx.Background(), func(ctx *rtctx.Context) (any, *rterr.Error) {
		return "done", nil
	}, rtroutine.Options{})

	v, werr := h.Wait(time.Second)
	require.Nil(t, werr)
	assert.Equal(t, "done", v)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.TotalRoutines)
}

func TestExecuteFailsWithoutWorkerThreads(t *testing.T) {
	resetSingleton(t)
	s, err := Initialize(Options{UseWorkerThreads: false})
	require.Nil(t, err)

	_, execErr := s.Execute(rtctx.Background(), "anything", nil, time.Second)
	require.NotNil(t, execErr)
	assert.Equal(t, rterr.CodeSchedulerState, execErr.Code)
}

func TestExecuteRunsOnWorkerPool(t *testing.T) {
	resetSingleton(t)
	s, err := Initialize(Options{UseWorkerThreads: true, ThreadCount: 2})
	require.Nil(t, err)

	id, rerr := s.RegisterFunction("square", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
		n := args.(int)
		return n * n, nil
	}, nil)
	require.Nil(t, rerr)

	v, execErr := s.Execute(rtctx.Background(), id, 7, time.Second)
	require.Nil(t, execErr)
	assert.Equal(t, 49, v)
}

func TestShutdownIsIdempotent(t *testing.T) {
	resetSingleton(t)
	s, err := Initialize(Options{})
	require.Nil(t, err)
	require.Nil(t, s.Shutdown(rtctx.Background()))
	require.Nil(t, s.Shutdown(rtctx.Background()))
	assert.Equal(t, StateTerminated, s.State())
}
