// ============================================================================
// concurra Sync Primitives - Semaphore
// ============================================================================
//
// Package: internal/rtsync
// File: semaphore.go
// Purpose: Counting semaphore with strict FIFO waiters and per-acquire
//          timeout, plus a reset that rejects every blocked waiter (spec
//          §4.3). Grounded on the teacher's WaitGroup-driven worker
//          lifecycle in internal/worker/worker_pool.go, generalized from
//          "count down to zero" into "bounded pool of permits."
//
// ============================================================================

package rtsync

import (
	"sync"
	"time"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
)

type semWaiter struct {
	wake chan *rterr.Error // nil on normal grant, set on reset
}

// Semaphore is a counting semaphore in [0, max] with FIFO waiters.
type Semaphore struct {
	mu        sync.Mutex
	available int
	max       int
	waiters   []*semWaiter
}

// NewSemaphore creates a Semaphore starting fully available (available == max).
func NewSemaphore(max int) (*Semaphore, *rterr.Error) {
	if verr := rtvalidate.Permits(max); verr != nil {
		return nil, verr
	}
	return &Semaphore{available: max, max: max}, nil
}

// Acquire blocks (subject to timeout) until a permit is available.
// timeout < 0 waits indefinitely; timeout == 0 behaves like TryAcquire.
func (s *Semaphore) Acquire(timeout time.Duration) *rterr.Error {
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return verr
	}
	if timeout == 0 {
		return s.TryAcquire()
	}

	s.mu.Lock()
	if len(s.waiters) == 0 && s.available > 0 {
		s.available--
		s.mu.Unlock()
		return nil
	}
	w := &semWaiter{wake: make(chan *rterr.Error, 1)}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case err := <-w.wake:
		return err
	case <-timerC:
		s.mu.Lock()
		removed := removeSemWaiter(&s.waiters, w)
		s.mu.Unlock()
		if !removed {
			return <-w.wake
		}
		return rterr.Newf(rterr.CodeSemaphoreTimeout, "timeout", timeout)
	}
}

// TryAcquire attempts to take a permit without blocking.
func (s *Semaphore) TryAcquire() *rterr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) == 0 && s.available > 0 {
		s.available--
		return nil
	}
	return rterr.New(rterr.CodeSemaphoreTimeout)
}

// Release returns a permit: it wakes the oldest FIFO waiter if any, else
// increments the available count (capped at max).
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		w.wake <- nil
		return
	}
	if s.available < s.max {
		s.available++
	}
	s.mu.Unlock()
}

// Reset rejects every blocked waiter with semaphore.reset and restores
// permits to max.
func (s *Semaphore) Reset() {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.available = s.max
	s.mu.Unlock()

	for _, w := range waiters {
		w.wake <- rterr.New(rterr.CodeSemaphoreReset)
	}
}

func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// RestrictedAcrossWorkers marks Semaphore as a single-address-space object
// per spec §4.7 — see internal/rtworker's boundary.go.
func (s *Semaphore) RestrictedAcrossWorkers() {}

func removeSemWaiter(q *[]*semWaiter, target *semWaiter) bool {
	s := *q
	for i, w := range s {
		if w == target {
			*q = append(s[:i], s[i+1:]...)
			return true
		}
	}
	return false
}
