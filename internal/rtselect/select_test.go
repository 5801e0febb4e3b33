package rtselect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rtchan"
	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rterr"
)

func TestSelectImmediatePass(t *testing.T) {
	a, _ := rtchan.New[int](1)
	b, _ := rtchan.New[int](1)
	require.Nil(t, b.Send(42, 0))

	var out int
	idx, err := Select(rtctx.Background(), -1, nil, Recv(a, &out), Recv(b, &out))
	require.Nil(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 42, out)
}

func TestSelectDefaultFiresWhenNothingReady(t *testing.T) {
	a, _ := rtchan.New[int](1)
	var out int
	defaultRan := false

	idx, err := Select(rtctx.Background(), -1, func() { defaultRan = true }, Recv(a, &out))
	require.Nil(t, err)
	assert.Equal(t, -1, idx)
	assert.True(t, defaultRan)
}

func TestSelectBackoffPicksUpLateArrival(t *testing.T) {
	ch, _ := rtchan.New[int](1)
	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = ch.Send(7, 0)
	}()

	var out int
	idx, err := Select(rtctx.Background(), time.Second, nil, Recv(ch, &out))
	require.Nil(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 7, out)
}

func TestSelectTimesOut(t *testing.T) {
	ch, _ := rtchan.New[int](1)
	var out int
	_, err := Select(rtctx.Background(), 20*time.Millisecond, nil, Recv(ch, &out))
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeSelectTimeout, err.Code)
}

func TestSelectHonorsContextCancellation(t *testing.T) {
	ctx, cancel := rtctx.WithCancel(rtctx.Background())
	ch, _ := rtchan.New[int](1)
	var out int

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Select(ctx, time.Second, nil, Recv(ch, &out))
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeContextCancelled, err.Code)
}

func TestSelectNoCasesRejected(t *testing.T) {
	_, err := Select(rtctx.Background(), 0, nil)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeSelectBadSend, err.Code)
}

func TestSelectOnClosedChannelIsAMatchWithError(t *testing.T) {
	ch, _ := rtchan.New[int](1)
	require.Nil(t, ch.Close())

	var out int
	idx, err := Select(rtctx.Background(), -1, nil, Recv(ch, &out))
	assert.Equal(t, 0, idx)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelClosedEmpty, err.Code)
}
