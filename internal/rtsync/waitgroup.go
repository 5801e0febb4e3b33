// ============================================================================
// concurra Sync Primitives - WaitGroup
// ============================================================================
//
// Package: internal/rtsync
// File: waitgroup.go
// Purpose: Signed counter with completion waiters per spec §4.3. Grounded
//          on the teacher's sync.WaitGroup usage throughout
//          internal/worker/worker_pool.go and internal/controller/controller.go
//          (loopWg tracking the four core loops), generalized into a
//          standalone, timeout-aware, reusable primitive.
//
// ============================================================================

package rtsync

import (
	"sync"
	"time"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
)

// WaitGroup is a reusable, timeout-aware counter with completion waiters.
type WaitGroup struct {
	mu      sync.Mutex
	counter int
	waiters []chan struct{}
}

func NewWaitGroup() *WaitGroup {
	return &WaitGroup{}
}

// Add adjusts the counter by delta. A negative result fails with
// waitgroup.negative and leaves the counter unchanged.
func (wg *WaitGroup) Add(delta int) *rterr.Error {
	wg.mu.Lock()
	if wg.counter+delta < 0 {
		wg.mu.Unlock()
		return rterr.Newf(rterr.CodeWaitGroupNegative, "counter", wg.counter, "delta", delta)
	}
	wg.counter += delta
	if wg.counter == 0 {
		toWake := wg.waiters
		wg.waiters = nil
		wg.mu.Unlock()
		for _, w := range toWake {
			close(w)
		}
		return nil
	}
	wg.mu.Unlock()
	return nil
}

// Done is equivalent to Add(-1).
func (wg *WaitGroup) Done() *rterr.Error {
	return wg.Add(-1)
}

// Wait blocks until the counter reaches zero or timeout elapses.
func (wg *WaitGroup) Wait(timeout time.Duration) *rterr.Error {
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return verr
	}

	wg.mu.Lock()
	if wg.counter == 0 {
		wg.mu.Unlock()
		return nil
	}
	if timeout == 0 {
		wg.mu.Unlock()
		return rterr.New(rterr.CodeWaitGroupWaitTimeout)
	}
	wake := make(chan struct{})
	wg.waiters = append(wg.waiters, wake)
	wg.mu.Unlock()

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case <-wake:
		return nil
	case <-timerC:
		wg.mu.Lock()
		removed := removeChan(&wg.waiters, wake)
		wg.mu.Unlock()
		if !removed {
			return nil
		}
		return rterr.Newf(rterr.CodeWaitGroupWaitTimeout, "timeout", timeout)
	}
}

func (wg *WaitGroup) Count() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.counter
}

// RestrictedAcrossWorkers marks WaitGroup as a single-address-space object
// per spec §4.7 — see internal/rtworker's boundary.go.
func (wg *WaitGroup) RestrictedAcrossWorkers() {}
