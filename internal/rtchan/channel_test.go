package rtchan

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

// TestBufferedFIFO mirrors the producer/consumer fairness scenario in
// spec §8: capacity 3, producer sends 1..10, consumer receives 10 values
// in order, and length() never exceeds 3.
func TestBufferedFIFO(t *testing.T) {
	ch, verr := New[int](3)
	require.Nil(t, verr)

	var maxLen int
	var mu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 1; i <= 10; i++ {
			err := ch.Send(i, -1)
			require.Nil(t, err)
		}
	}()

	got := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		mu.Lock()
		if l := ch.Len(); l > maxLen {
			maxLen = l
		}
		mu.Unlock()
		v, err := ch.Receive(time.Second)
		require.Nil(t, err)
		got = append(got, v)
	}
	<-done

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
	assert.LessOrEqual(t, maxLen, 3)
}

// TestRendezvous: unbuffered channel, send only completes once matched.
func TestRendezvous(t *testing.T) {
	ch, verr := New[string](0)
	require.Nil(t, verr)

	sendDone := make(chan *rterr.Error, 1)
	go func() {
		sendDone <- ch.Send("hello", time.Second)
	}()

	time.Sleep(20 * time.Millisecond) // give the sender a chance to block
	v, err := ch.Receive(time.Second)
	require.Nil(t, err)
	assert.Equal(t, "hello", v)
	assert.Nil(t, <-sendDone)
}

func TestRendezvousCloseFailsBlockedSender(t *testing.T) {
	ch, verr := New[int](0)
	require.Nil(t, verr)

	sendDone := make(chan *rterr.Error, 1)
	go func() {
		sendDone <- ch.Send(1, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	require.Nil(t, ch.Close())

	err := <-sendDone
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelClosed, err.Code)
}

func TestCloseIdempotencyOfReceivers(t *testing.T) {
	ch, verr := New[int](2)
	require.Nil(t, verr)

	require.Nil(t, ch.Send(1, 0))
	require.Nil(t, ch.Close())

	v, err := ch.Receive(0)
	require.Nil(t, err)
	assert.Equal(t, 1, v)

	_, err = ch.Receive(0)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelClosedEmpty, err.Code)
}

func TestDoubleCloseFails(t *testing.T) {
	ch, _ := New[int](1)
	require.Nil(t, ch.Close())
	err := ch.Close()
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelAlreadyClosed, err.Code)
}

func TestSendTimeout(t *testing.T) {
	ch, _ := New[int](1)
	require.Nil(t, ch.Send(1, 0)) // fills the only slot

	err := ch.Send(2, 20*time.Millisecond)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelSendTimeout, err.Code)
	assert.Equal(t, 1, ch.Len())
}

func TestReceiveTimeout(t *testing.T) {
	ch, _ := New[int](1)
	_, err := ch.Receive(20 * time.Millisecond)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelRecvTimeout, err.Code)
}

func TestTrySendTryReceiveFastPaths(t *testing.T) {
	ch, _ := New[int](1)
	require.Nil(t, ch.TrySend(1))
	err := ch.TrySend(2)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeChannelBufferFull, err.Code)

	v, rerr := ch.TryReceive()
	require.Nil(t, rerr)
	assert.Equal(t, 1, v)

	_, rerr = ch.TryReceive()
	require.NotNil(t, rerr)
	assert.Equal(t, rterr.CodeChannelEmpty, rerr.Code)
}

// TestDirectHandoffWinsOverBuffer exercises spec's fairness rule: when a
// receiver is already waiting, Send hands off directly even though buffer
// space exists, instead of filling the buffer.
func TestDirectHandoffWinsOverBuffer(t *testing.T) {
	ch, _ := New[int](5)

	recvDone := make(chan int, 1)
	go func() {
		v, err := ch.Receive(time.Second)
		require.Nil(t, err)
		recvDone <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.Nil(t, ch.Send(42, time.Second))

	assert.Equal(t, 42, <-recvDone)
	assert.Equal(t, 0, ch.Len())
}

func TestNegativeBufferSizeRejected(t *testing.T) {
	_, err := New[int](-1)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeValidationBufferSize, err.Code)
}
