package rtsync

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

func TestMutexLockUnlockBalance(t *testing.T) {
	m := NewMutex()
	require.Nil(t, m.Lock(time.Second))
	assert.True(t, m.IsLocked())
	require.Nil(t, m.Unlock())
	assert.False(t, m.IsLocked())
}

func TestMutexUnlockWithoutHoldingFails(t *testing.T) {
	m := NewMutex()
	err := m.Unlock()
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeMutexNotLocked, err.Code)
}

func TestMutexTryLockContested(t *testing.T) {
	m := NewMutex()
	require.Nil(t, m.TryLock())
	err := m.TryLock()
	require.NotNil(t, err)
	require.Nil(t, m.Unlock())
	require.Nil(t, m.TryLock())
}

func TestMutexSerializesConcurrentAccess(t *testing.T) {
	m := NewMutex()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.Nil(t, m.Lock(time.Second))
			counter++
			require.Nil(t, m.Unlock())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestRWMutexExclusion(t *testing.T) {
	rw, err := NewRWMutex(RWMutexOptions{})
	require.Nil(t, err)

	require.Nil(t, rw.RLock(time.Second))
	require.Nil(t, rw.RLock(time.Second))
	assert.Equal(t, 2, rw.ReaderCount())

	wlockErr := rw.TryLock()
	require.NotNil(t, wlockErr)

	require.Nil(t, rw.RUnlock())
	require.Nil(t, rw.RUnlock())
	require.Nil(t, rw.Lock(time.Second))
	assert.True(t, rw.IsWriteLocked())
	require.Nil(t, rw.Unlock())
}

func TestRWMutexWriterPriority(t *testing.T) {
	rw, _ := NewRWMutex(RWMutexOptions{})

	// 3 readers hold the lock.
	for i := 0; i < 3; i++ {
		require.Nil(t, rw.RLock(time.Second))
	}

	writerDone := make(chan struct{})
	go func() {
		require.Nil(t, rw.Lock(time.Second))
		close(writerDone)
	}()
	time.Sleep(20 * time.Millisecond) // let the writer queue

	var lateReaderEntered atomic.Bool
	lateReaderGotIn := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			require.Nil(t, rw.RLock(time.Second))
			lateReaderEntered.Store(true)
			lateReaderGotIn <- struct{}{}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	select {
	case <-writerDone:
		t.Fatal("writer ran before existing readers released")
	default:
	}
	assert.False(t, lateReaderEntered.Load(), "late readers must queue behind the writer")

	// release the 3 original readers; the writer should now run.
	for i := 0; i < 3; i++ {
		require.Nil(t, rw.RUnlock())
	}
	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock")
	}
	require.Nil(t, rw.Unlock())

	select {
	case <-lateReaderGotIn:
	case <-time.After(time.Second):
		t.Fatal("late readers never woke after writer unlock")
	}
}

func TestSemaphoreInvariant(t *testing.T) {
	sem, err := NewSemaphore(2)
	require.Nil(t, err)

	require.Nil(t, sem.Acquire(time.Second))
	require.Nil(t, sem.Acquire(time.Second))
	assert.Equal(t, 0, sem.Available())

	acqErr := sem.Acquire(20 * time.Millisecond)
	require.NotNil(t, acqErr)
	assert.Equal(t, rterr.CodeSemaphoreTimeout, acqErr.Code)

	sem.Release()
	assert.Equal(t, 1, sem.Available())
	sem.Release()
	assert.Equal(t, 2, sem.Available())
}

func TestSemaphoreReset(t *testing.T) {
	sem, _ := NewSemaphore(1)
	require.Nil(t, sem.Acquire(time.Second))

	errCh := make(chan *rterr.Error, 1)
	go func() {
		errCh <- sem.Acquire(time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	sem.Reset()
	err := <-errCh
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeSemaphoreReset, err.Code)
	assert.Equal(t, 1, sem.Available())
}

func TestWaitGroupNegativeRejected(t *testing.T) {
	wg := NewWaitGroup()
	err := wg.Add(-1)
	require.NotNil(t, err)
	assert.Equal(t, rterr.CodeWaitGroupNegative, err.Code)
}

func TestWaitGroupWaitReturnsAtZero(t *testing.T) {
	wg := NewWaitGroup()
	require.Nil(t, wg.Add(2))

	done := make(chan struct{})
	go func() {
		require.Nil(t, wg.Wait(time.Second))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.Nil(t, wg.Done())
	select {
	case <-done:
		t.Fatal("wait returned before counter reached zero")
	case <-time.After(20 * time.Millisecond):
	}
	require.Nil(t, wg.Done())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait never returned")
	}

	// reusable afterwards
	require.Nil(t, wg.Add(1))
	require.Nil(t, wg.Done())
	require.Nil(t, wg.Wait(0))
}

func TestOnceRunsExactlyOnceConcurrently(t *testing.T) {
	o := NewOnce()
	var calls int32
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	results := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = o.Do(func() error {
				atomic.AddInt32(&calls, 1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls)
	for _, r := range results {
		assert.NoError(t, r)
	}
}

func TestOnceStickyError(t *testing.T) {
	o := NewOnce()
	boom := assertErr("boom")
	err1 := o.Do(func() error { return boom })
	err2 := o.Do(func() error { t.Fatal("should not run again"); return nil })
	assert.Equal(t, boom, err1)
	assert.Equal(t, boom, err2)
	assert.True(t, o.Done())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
