// ============================================================================
// concurra Channel - Bounded MPMC FIFO With Close + Timeout Semantics
// ============================================================================
//
// Package: internal/rtchan
// File: channel.go
// Purpose: The bounded FIFO behind spec §4.1 — buffered and rendezvous
//          (capacity 0) channels, blocking and non-blocking send/receive,
//          close semantics, and the "direct handoff beats a buffered slot"
//          fairness rule.
//
// Lineage: generalizes the teacher's taskCh/resultCh idiom in
// internal/worker/worker_pool.go (a buffered stdlib channel plus a mutex
// guarding started/stopped flags) into a channel type with its own explicit
// waiter queues, because stdlib channels can't expose trySend/tryReceive,
// a testable fairness rule between handoff and buffering, or per-op
// timeouts without extra plumbing — exactly the gap this package fills.
//
// ============================================================================

package rtchan

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
)

// MetricsSink receives channel traffic counters (spec.md §2/§3's
// client_golang domain-stack entry). A nil sink (the default) is a no-op.
type MetricsSink interface {
	RecordChannelSend()
	RecordChannelReceive()
	RecordChannelTimeout()
}

var metricsPtr atomic.Pointer[MetricsSink]

// SetMetrics installs the process-wide channel metrics sink, replacing any
// previously installed one. Pass nil to stop recording.
func SetMetrics(sink MetricsSink) {
	if sink == nil {
		metricsPtr.Store(nil)
		return
	}
	metricsPtr.Store(&sink)
}

func recordSend() {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordChannelSend()
	}
}

func recordReceive() {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordChannelReceive()
	}
}

func recordTimeout() {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordChannelTimeout()
	}
}

type sendWaiter[T any] struct {
	value T
	done  chan error // buffered 1; receives nil on match, an *rterr.Error on close/timeout
}

type recvResult[T any] struct {
	value T
	err   error
}

type recvWaiter[T any] struct {
	result chan recvResult[T] // buffered 1
}

// Channel is a bounded, typed, multi-producer/multi-consumer FIFO.
type Channel[T any] struct {
	mu       sync.Mutex
	capacity int
	buf      []T
	closed   bool
	sendQ    []*sendWaiter[T]
	recvQ    []*recvWaiter[T]
}

// New creates a Channel with the given buffer capacity. capacity == 0
// yields a rendezvous (unbuffered) channel; send only completes once
// matched by a receiver.
func New[T any](capacity int) (*Channel[T], *rterr.Error) {
	if err := rtvalidate.BufferSize(capacity); err != nil {
		return nil, err
	}
	return &Channel[T]{capacity: capacity}, nil
}

// Send delivers v, blocking (subject to timeout) if neither a waiting
// receiver nor buffer space is immediately available.
//
// timeout < 0 waits indefinitely; timeout == 0 behaves like TrySend;
// a positive timeout bounds the wait and fails with
// rterr.CodeChannelSendTimeout if it elapses unmatched.
func (c *Channel[T]) Send(v T, timeout time.Duration) *rterr.Error {
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return verr
	}
	if timeout == 0 {
		return c.TrySend(v)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return rterr.New(rterr.CodeChannelClosed)
	}
	if len(c.recvQ) > 0 {
		w := c.popRecv()
		c.mu.Unlock()
		w.result <- recvResult[T]{value: v}
		recordSend()
		return nil
	}
	if len(c.buf) < c.capacity {
		c.buf = append(c.buf, v)
		c.mu.Unlock()
		recordSend()
		return nil
	}

	waiter := &sendWaiter[T]{value: v, done: make(chan error, 1)}
	c.sendQ = append(c.sendQ, waiter)
	c.mu.Unlock()

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case err := <-waiter.done:
		if err != nil {
			return err.(*rterr.Error)
		}
		recordSend()
		return nil
	case <-timerC:
		c.mu.Lock()
		removed := c.removeSendWaiter(waiter)
		c.mu.Unlock()
		if removed {
			recordTimeout()
			return rterr.Newf(rterr.CodeChannelSendTimeout, "timeout", timeout)
		}
		// matched concurrently right as the timer fired; honor the match.
		if err := <-waiter.done; err != nil {
			return err.(*rterr.Error)
		}
		recordSend()
		return nil
	}
}

// Receive removes and returns the next value, blocking (subject to
// timeout) if none is immediately available.
//
// timeout < 0 waits indefinitely; timeout == 0 behaves like TryReceive;
// a positive timeout bounds the wait and fails with
// rterr.CodeChannelRecvTimeout if it elapses unmatched.
func (c *Channel[T]) Receive(timeout time.Duration) (T, *rterr.Error) {
	var zero T
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return zero, verr
	}
	if timeout == 0 {
		return c.TryReceive()
	}

	c.mu.Lock()
	if len(c.buf) > 0 {
		val := c.buf[0]
		c.buf = c.buf[1:]
		if len(c.sendQ) > 0 {
			w := c.popSend()
			c.buf = append(c.buf, w.value)
			c.mu.Unlock()
			w.done <- nil
			recordReceive()
			return val, nil
		}
		c.mu.Unlock()
		recordReceive()
		return val, nil
	}
	if len(c.sendQ) > 0 {
		w := c.popSend()
		c.mu.Unlock()
		w.done <- nil
		recordReceive()
		return w.value, nil
	}
	if c.closed {
		c.mu.Unlock()
		return zero, rterr.New(rterr.CodeChannelClosedEmpty)
	}

	waiter := &recvWaiter[T]{result: make(chan recvResult[T], 1)}
	c.recvQ = append(c.recvQ, waiter)
	c.mu.Unlock()

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case res := <-waiter.result:
		if res.err == nil {
			recordReceive()
		}
		return res.value, asRtErr(res.err)
	case <-timerC:
		c.mu.Lock()
		removed := c.removeRecvWaiter(waiter)
		c.mu.Unlock()
		if removed {
			recordTimeout()
			return zero, rterr.Newf(rterr.CodeChannelRecvTimeout, "timeout", timeout)
		}
		res := <-waiter.result
		if res.err == nil {
			recordReceive()
		}
		return res.value, asRtErr(res.err)
	}
}

// TrySend attempts the non-blocking fast paths only: closed check, an
// immediately waiting receiver, or free buffer space.
func (c *Channel[T]) TrySend(v T) *rterr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return rterr.New(rterr.CodeChannelClosed)
	}
	if len(c.recvQ) > 0 {
		w := c.popRecv()
		select {
		case w.result <- recvResult[T]{value: v}:
		default:
		}
		recordSend()
		return nil
	}
	if len(c.buf) < c.capacity {
		c.buf = append(c.buf, v)
		recordSend()
		return nil
	}
	return rterr.New(rterr.CodeChannelBufferFull)
}

// TryReceive attempts the non-blocking fast paths only.
func (c *Channel[T]) TryReceive() (T, *rterr.Error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) > 0 {
		val := c.buf[0]
		c.buf = c.buf[1:]
		if len(c.sendQ) > 0 {
			w := c.popSend()
			c.buf = append(c.buf, w.value)
			select {
			case w.done <- nil:
			default:
			}
		}
		recordReceive()
		return val, nil
	}
	if len(c.sendQ) > 0 {
		w := c.popSend()
		select {
		case w.done <- nil:
		default:
		}
		recordReceive()
		return w.value, nil
	}
	if c.closed {
		return zero, rterr.New(rterr.CodeChannelClosedEmpty)
	}
	return zero, rterr.New(rterr.CodeChannelEmpty)
}

// Close marks the channel closed: every queued sender fails with
// channel.closed, every queued receiver fails with channel.closed-empty,
// the buffer drains normally afterwards, and a second Close fails with
// channel.already-closed.
func (c *Channel[T]) Close() *rterr.Error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return rterr.New(rterr.CodeChannelAlreadyClosed)
	}
	c.closed = true
	senders := c.sendQ
	receivers := c.recvQ
	c.sendQ = nil
	c.recvQ = nil
	c.mu.Unlock()

	for _, w := range senders {
		w.done <- rterr.New(rterr.CodeChannelClosed)
	}
	for _, w := range receivers {
		var zero T
		w.result <- recvResult[T]{value: zero, err: rterr.New(rterr.CodeChannelClosedEmpty)}
	}
	return nil
}

func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Channel[T]) Cap() int {
	return c.capacity
}

func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel[T]) popSend() *sendWaiter[T] {
	w := c.sendQ[0]
	c.sendQ = c.sendQ[1:]
	return w
}

func (c *Channel[T]) popRecv() *recvWaiter[T] {
	w := c.recvQ[0]
	c.recvQ = c.recvQ[1:]
	return w
}

func (c *Channel[T]) removeSendWaiter(target *sendWaiter[T]) bool {
	for i, w := range c.sendQ {
		if w == target {
			c.sendQ = append(c.sendQ[:i], c.sendQ[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Channel[T]) removeRecvWaiter(target *recvWaiter[T]) bool {
	for i, w := range c.recvQ {
		if w == target {
			c.recvQ = append(c.recvQ[:i], c.recvQ[i+1:]...)
			return true
		}
	}
	return false
}

// RestrictedAcrossWorkers marks Channel as a single-address-space object:
// it may not cross the worker boundary as a live value (spec §4.7) — see
// internal/rtworker's boundary.go.
func (c *Channel[T]) RestrictedAcrossWorkers() {}

func asRtErr(err error) *rterr.Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*rterr.Error); ok {
		return e
	}
	return rterr.New(rterr.CodeChannelClosedEmpty)
}
