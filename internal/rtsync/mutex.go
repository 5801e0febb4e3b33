// ============================================================================
// concurra Sync Primitives - Mutex
// ============================================================================
//
// Package: internal/rtsync
// File: mutex.go
// Purpose: Exclusive lock with timeout per spec §4.3. Grounded on the
//          teacher's sync.Mutex-guarded Controller/Pool state (started,
//          stopped flags) generalized into a standalone primitive with its
//          own waiter queue, since stdlib sync.Mutex can't expose tryLock,
//          a bounded-wait Lock, or isLocked().
//
// Fairness note (spec §4.3): a woken waiter does not auto-claim the lock —
// it re-attempts acquisition, so a concurrent TryLock/Lock from a fresh
// goroutine can barge ahead of it. This is intentional: strict FIFO lives
// in RWMutex's writer queue, not here.
//
// ============================================================================

package rtsync

import (
	"sync"
	"time"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
)

// Mutex is a standalone exclusive lock with timeout support.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// NewMutex creates an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// Lock blocks until the mutex is free or timeout elapses.
// timeout < 0 waits indefinitely; timeout == 0 behaves like TryLock.
func (m *Mutex) Lock(timeout time.Duration) *rterr.Error {
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return verr
	}
	if timeout == 0 {
		return m.TryLock()
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return nil
		}
		wake := make(chan struct{})
		m.waiters = append(m.waiters, wake)
		m.mu.Unlock()

		var timerC <-chan time.Time
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				m.mu.Lock()
				removeChan(&m.waiters, wake)
				m.mu.Unlock()
				return rterr.Newf(rterr.CodeMutexLockTimeout, "timeout", timeout)
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			timerC = t.C
		}

		select {
		case <-wake:
			continue // re-attempt acquisition; no auto-claim
		case <-timerC:
			m.mu.Lock()
			removed := removeChan(&m.waiters, wake)
			m.mu.Unlock()
			if !removed {
				// already woken concurrently; re-attempt instead of
				// reporting a spurious timeout.
				continue
			}
			return rterr.Newf(rterr.CodeMutexLockTimeout, "timeout", timeout)
		}
	}
}

// TryLock attempts to acquire without blocking.
func (m *Mutex) TryLock() *rterr.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return rterr.New(rterr.CodeMutexLockTimeout)
	}
	m.locked = true
	return nil
}

// Unlock releases the mutex and wakes the oldest waiter, if any.
func (m *Mutex) Unlock() *rterr.Error {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		return rterr.New(rterr.CodeMutexNotLocked)
	}
	m.locked = false
	var w chan struct{}
	if len(m.waiters) > 0 {
		w = m.waiters[0]
		m.waiters = m.waiters[1:]
	}
	m.mu.Unlock()
	if w != nil {
		close(w)
	}
	return nil
}

func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// RestrictedAcrossWorkers marks Mutex as a single-address-space object: it
// may not cross the worker boundary as a live value (spec §4.7): execute
// arguments and worker results carrying one are rejected — see
// internal/rtworker's boundary.go.
func (m *Mutex) RestrictedAcrossWorkers() {}

func removeChan(q *[]chan struct{}, target chan struct{}) bool {
	s := *q
	for i, c := range s {
		if c == target {
			*q = append(s[:i], s[i+1:]...)
			return true
		}
	}
	return false
}
