// ============================================================================
// concurra Routine Executor - Go/GoAll/GoRace/GoWithRetry
// ============================================================================
//
// Package: internal/rtroutine
// File: routine.go
// Purpose: Wrap an arbitrary typed callable in its own goroutine with an
//          optional per-routine timeout, an onError hook, and a future-like
//          Handle resolving through the state machine
//          pending -> running -> completed|failed|cancelled (spec §3).
//
// Lineage: internal/worker/worker.go's Worker.Run()/execute() is the model —
// one goroutine per unit of work, a context.WithTimeout wrapper around the
// call, a captured Result{Success, Error, Duration}. concurra generalizes
// "task with a map[string]interface{} payload" into "arbitrary Func
// returning (any, *rterr.Error)," and the single Worker loop into a Handle
// per call instead of a channel-fed pool (rtworker covers the pooled case).
//
// ============================================================================

package rtroutine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
)

// MetricsSink receives routine lifecycle counters and latency (spec.md
// §2/§3's client_golang domain-stack entry). A nil sink (the default) is
// a no-op.
type MetricsSink interface {
	RecordRoutineStarted()
	RecordRoutineCompleted(latencySeconds float64)
	RecordRoutineFailed(latencySeconds float64)
}

var metricsPtr atomic.Pointer[MetricsSink]

// SetMetrics installs the process-wide routine metrics sink, replacing
// any previously installed one. Pass nil to stop recording.
func SetMetrics(sink MetricsSink) {
	if sink == nil {
		metricsPtr.Store(nil)
		return
	}
	metricsPtr.Store(&sink)
}

// State is a position in the routine lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Func is the shape of work a routine executes.
type Func func(ctx *rtctx.Context) (any, *rterr.Error)

// Options configures a Go call.
type Options struct {
	// Name is a human-readable label surfaced by Handle.Name(), purely
	// for observability.
	Name string
	// Timeout bounds the routine's execution: -1 means no timeout, 0 also
	// means no timeout (the routine runs until fn returns), any positive
	// value derives a child context via rtctx.WithTimeout.
	Timeout time.Duration
	// OnError, if set, runs (synchronously, on the routine's own
	// goroutine) when the routine ends in StateFailed.
	OnError func(*rterr.Error)
	// UseWorkerThreads requests dispatch onto the OS-thread-pinned worker
	// pool instead of running fn in-process, per spec §4.5's
	// useWorkerThreads option. rtroutine itself stays pool-agnostic — the
	// routing decision and the pool handoff live in pkg/scheduler, the
	// only caller that holds both a Scheduler and a Pool; this field is
	// carried through Options purely as routing metadata, and Go/GoAll/
	// GoRace/GoWithRetry below run fn exactly as given whether or not it
	// was substituted with a worker-dispatching closure by the caller.
	UseWorkerThreads bool
}

// Handle is a future resolving to fn's result.
type Handle struct {
	id         string
	name       string
	mu         sync.Mutex
	state      State
	value      any
	err        *rterr.Error
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
	cancel     rtctx.CancelFunc
}

func newHandle(name string) *Handle {
	return &Handle{
		id:    uuid.NewString(),
		name:  name,
		state: StatePending,
		done:  make(chan struct{}),
	}
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Name() string { return h.name }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// StartedAt reports when the routine transitioned to StateRunning.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// Cancel requests cancellation of the routine's timeout-derived context.
// It has no effect on a routine run without a timeout (spec §4.8: GoAll
// does not implicitly cancel siblings, so an untimed routine has nothing
// to cancel through).
func (h *Handle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks (subject to timeout) until the routine reaches a terminal
// state, then returns its value/error. timeout < 0 waits indefinitely;
// timeout == 0 polls once without blocking.
func (h *Handle) Wait(timeout time.Duration) (any, *rterr.Error) {
	if verr := rtvalidate.Timeout(timeout, 0); verr != nil {
		return nil, verr
	}
	if timeout == 0 {
		select {
		case <-h.done:
			return h.result()
		default:
			return nil, rterr.New(rterr.CodeSelectTimeout)
		}
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}
	select {
	case <-h.done:
		return h.result()
	case <-timerC:
		return nil, rterr.Newf(rterr.CodeSelectTimeout, "timeout", timeout)
	}
}

func (h *Handle) result() (any, *rterr.Error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

func (h *Handle) finish(state State, value any, err *rterr.Error) {
	h.mu.Lock()
	h.state = state
	h.value = value
	h.err = err
	h.finishedAt = time.Now()
	h.mu.Unlock()
	close(h.done)
}

// Go starts fn on its own goroutine and returns immediately with its
// Handle.
func Go(parent *rtctx.Context, fn Func, opts Options) *Handle {
	h := newHandle(opts.Name)
	runCtx := parent
	if opts.Timeout > 0 {
		runCtx, h.cancel = rtctx.WithTimeout(parent, opts.Timeout)
	}

	go func() {
		h.mu.Lock()
		h.state = StateRunning
		h.startedAt = time.Now()
		h.mu.Unlock()
		recordStarted()

		value, err := runSafely(runCtx, fn)
		latency := time.Since(h.startedAt).Seconds()

		switch {
		case err != nil && (err.Code == rterr.CodeContextCancelled || err.Code == rterr.CodeContextDeadlineExceeded):
			h.finish(StateCancelled, value, err)
			recordFailed(latency)
		case err != nil:
			if opts.OnError != nil {
				opts.OnError(err)
			}
			h.finish(StateFailed, value, err)
			recordFailed(latency)
		default:
			h.finish(StateCompleted, value, nil)
			recordCompleted(latency)
		}
		if h.cancel != nil {
			h.cancel()
		}
	}()

	return h
}

func recordStarted() {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordRoutineStarted()
	}
}

func recordCompleted(latencySeconds float64) {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordRoutineCompleted(latencySeconds)
	}
}

func recordFailed(latencySeconds float64) {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordRoutineFailed(latencySeconds)
	}
}

func runSafely(ctx *rtctx.Context, fn Func) (value any, err *rterr.Error) {
	defer func() {
		if r := recover(); r != nil {
			err = rterr.Newf(rterr.CodeWorkerDied, "panic", r)
		}
	}()
	return fn(ctx)
}

// GoAll starts every fn concurrently and waits for all of them to reach a
// terminal state, returning their handles in call order. A failure in one
// routine does not cancel its siblings — see DESIGN.md's Open Question
// resolution for why GoAll favors independent completion over fail-fast.
func GoAll(parent *rtctx.Context, opts Options, fns ...Func) []*Handle {
	handles := make([]*Handle, len(fns))
	for i, fn := range fns {
		handles[i] = Go(parent, fn, opts)
	}
	for _, h := range handles {
		<-h.done
	}
	return handles
}

// GoRace starts every fn concurrently and returns the Handle of whichever
// reaches a terminal state first; the rest keep running (and can be
// stopped individually via Handle.Cancel if they carry a timeout).
func GoRace(parent *rtctx.Context, opts Options, fns ...Func) *Handle {
	handles := make([]*Handle, len(fns))
	for i, fn := range fns {
		handles[i] = Go(parent, fn, opts)
	}

	winner := make(chan *Handle, len(handles))
	for _, h := range handles {
		h := h
		go func() {
			<-h.done
			winner <- h
		}()
	}
	return <-winner
}

// GoWithRetry runs fn up to maxAttempts times in total (values below 1 are
// treated as 1), with exponential backoff baseDelay*2^attempt between
// attempts (spec
// §4.5's goWithRetry), until a completed Handle is produced or attempts
// are exhausted (in which case the last failed Handle is returned).
func GoWithRetry(parent *rtctx.Context, fn Func, opts Options, maxAttempts int, baseDelay time.Duration) *Handle {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last *Handle
	for attempt := 0; attempt < maxAttempts; attempt++ {
		last = Go(parent, fn, opts)
		<-last.done
		if last.State() == StateCompleted {
			return last
		}
		if attempt < maxAttempts-1 && baseDelay > 0 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
		}
	}
	return last
}
