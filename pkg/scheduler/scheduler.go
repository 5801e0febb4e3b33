// ============================================================================
// concurra Parallel Scheduler - Public Façade
// ============================================================================
//
// Package: pkg/scheduler
// File: scheduler.go
// Purpose: The single public entry point of spec.md §6.1/§4.8:
//          Initialize/Get/Shutdown lifecycle over the state machine
//          uninitialized -> initialized -> shutting-down -> terminated,
//          and Go/GoAll/GoRace/GoWithRetry dispatching either in-process
//          (rtroutine) or onto the worker pool (rtworker), per routine.
//
// Directly grounded on internal/controller/controller.go's Controller:
// the same mutex-guarded stopped/started bookkeeping, the same
// "close(stopCh), pool.Stop(), loopWg.Wait()" shutdown ordering (here:
// mark shutting-down, stop the worker pool if any, mark terminated), and
// the same GetStatus/GetStats/GetTotalJobs observability surface,
// generalized from job counts to routine/worker counts in Snapshot().
// The package-level Initialize/Get singleton matches spec.md §6.1's
// initializeParallelScheduler/getParallelScheduler/shutdownParallelScheduler
// naming directly; Controller itself is constructed per-call by its
// caller (cmd/queue/main.go), so the singleton shape is new here, grounded
// in the spec's library surface rather than in Controller's constructor
// pattern.
//
// ============================================================================

package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/concurra/internal/rtbalance"
	"github.com/ChuLiYu/concurra/internal/rtchan"
	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtmetrics"
	"github.com/ChuLiYu/concurra/internal/rtregistry"
	"github.com/ChuLiYu/concurra/internal/rtroutine"
	"github.com/ChuLiYu/concurra/internal/rtselect"
	"github.com/ChuLiYu/concurra/internal/rtvalidate"
	"github.com/ChuLiYu/concurra/internal/rtworker"
)

var log = slog.Default()

// State is a position in the scheduler lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateShuttingDown  State = "shutting-down"
	StateTerminated    State = "terminated"
)

const defaultExecuteTimeout = 5 * time.Second

// Options configures Initialize. ThreadCount <= 0 means "auto" (spec.md
// §6.4: max(2, min(8, cpus))).
type Options struct {
	UseWorkerThreads bool
	ThreadCount      int
	Timeout          time.Duration `validate:"gte=-1"`
	// Metrics, if set, is wired into every subsystem this scheduler owns
	// (routines, channels, the selector, and the worker pool). It must be
	// constructed exactly once per process by the caller — Initialize
	// never builds one itself, since rtmetrics.NewCollector panics on a
	// second Prometheus registration and this package's own test suite
	// calls Initialize many times per binary.
	Metrics *rtmetrics.Collector `validate:"-"`
}

// Scheduler is the process-wide parallel execution façade.
type Scheduler struct {
	mu        sync.Mutex
	state     State
	opts      Options
	startTime time.Time

	registry *rtregistry.FunctionRegistry
	handles  *rtregistry.HandleTable
	pool     *rtworker.Pool
}

var (
	singletonMu sync.Mutex
	singleton   *Scheduler
)

// Initialize builds and starts the process-wide scheduler. It fails with
// scheduler.invalid-state if one is already running.
func Initialize(opts Options) (*Scheduler, *rterr.Error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil && singleton.State() != StateTerminated {
		return nil, rterr.New(rterr.CodeSchedulerState)
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultExecuteTimeout
	}
	if verr := rtvalidate.Struct(&opts, rterr.CodeValidationTimeout); verr != nil {
		return nil, verr
	}
	threadCount := opts.ThreadCount
	if threadCount <= 0 {
		threadCount = rtworker.DefaultThreadCount()
	}

	s := &Scheduler{
		state:     StateInitialized,
		opts:      opts,
		startTime: time.Now(),
		registry:  rtregistry.NewFunctionRegistry(nil),
		handles:   rtregistry.NewHandleTable(),
	}

	if opts.UseWorkerThreads {
		pool, verr := rtworker.NewPool(threadCount, s.registry, rtbalance.NewLeastBusy())
		if verr != nil {
			return nil, verr
		}
		if opts.Metrics != nil {
			pool.SetMetrics(opts.Metrics)
		}
		if verr := pool.Start(threadCount); verr != nil {
			return nil, verr
		}
		s.pool = pool
	}

	if opts.Metrics != nil {
		rtroutine.SetMetrics(opts.Metrics)
		rtchan.SetMetrics(opts.Metrics)
		rtselect.SetMetrics(opts.Metrics)
	}

	singleton = s
	log.Info("scheduler initialized", "useWorkerThreads", opts.UseWorkerThreads, "threadCount", threadCount)
	return s, nil
}

// Get returns the currently running scheduler, if any.
func Get() (*Scheduler, bool) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil || singleton.State() == StateTerminated {
		return nil, false
	}
	return singleton, true
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RegisterFunction exposes the scheduler's function registry.
func (s *Scheduler) RegisterFunction(id string, c rtregistry.Callable, metadata map[string]any) (string, *rterr.Error) {
	return s.registry.Register(id, c, metadata)
}

// dispatchFunc honors opts.UseWorkerThreads (spec.md §4.5): if worker
// threads are enabled on fn's own Options AND this scheduler holds a
// started pool, fn runs via the pool instead of in-process, by
// registering it under an ephemeral id and handing that id to
// Pool.Execute. rtroutine itself never learns about rtworker — this
// closure is the entire routing decision, and rtroutine.Go/GoAll/GoRace/
// GoWithRetry run the returned Func exactly as any other.
func (s *Scheduler) dispatchFunc(fn rtroutine.Func, opts rtroutine.Options) rtroutine.Func {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if !opts.UseWorkerThreads || pool == nil {
		return fn
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}

	return func(ctx *rtctx.Context) (any, *rterr.Error) {
		id, verr := s.registry.Register("", func(callCtx *rtctx.Context, _ any) (any, *rterr.Error) {
			return fn(callCtx)
		}, nil)
		if verr != nil {
			return nil, verr
		}
		defer s.registry.Unregister(id)
		return pool.Execute(ctx, id, nil, timeout)
	}
}

// Go dispatches fn in-process, or onto the worker pool if opts requests
// it (spec.md §4.5), and tracks its Handle in the routine table.
func (s *Scheduler) Go(parent *rtctx.Context, fn rtroutine.Func, opts rtroutine.Options) *rtroutine.Handle {
	h := rtroutine.Go(parent, s.dispatchFunc(fn, opts), opts)
	s.handles.Register(h)
	return h
}

// GoAll dispatches every fn in-process or onto the worker pool per opts,
// and waits for all of them.
func (s *Scheduler) GoAll(parent *rtctx.Context, opts rtroutine.Options, fns ...rtroutine.Func) []*rtroutine.Handle {
	dispatched := make([]rtroutine.Func, len(fns))
	for i, fn := range fns {
		dispatched[i] = s.dispatchFunc(fn, opts)
	}
	handles := rtroutine.GoAll(parent, opts, dispatched...)
	for _, h := range handles {
		s.handles.Register(h)
	}
	return handles
}

// GoRace dispatches every fn in-process or onto the worker pool per
// opts, and returns the first finisher.
func (s *Scheduler) GoRace(parent *rtctx.Context, opts rtroutine.Options, fns ...rtroutine.Func) *rtroutine.Handle {
	dispatched := make([]rtroutine.Func, len(fns))
	for i, fn := range fns {
		dispatched[i] = s.dispatchFunc(fn, opts)
	}
	h := rtroutine.GoRace(parent, opts, dispatched...)
	s.handles.Register(h)
	return h
}

// GoWithRetry dispatches fn in-process or onto the worker pool per opts,
// with retry.
func (s *Scheduler) GoWithRetry(parent *rtctx.Context, fn rtroutine.Func, opts rtroutine.Options, maxAttempts int, backoff time.Duration) *rtroutine.Handle {
	h := rtroutine.GoWithRetry(parent, s.dispatchFunc(fn, opts), opts, maxAttempts, backoff)
	s.handles.Register(h)
	return h
}

// Execute runs a previously registered function on the worker pool. It
// fails with scheduler.invalid-state if the scheduler wasn't initialized
// with UseWorkerThreads.
func (s *Scheduler) Execute(ctx *rtctx.Context, functionID string, args any, timeout time.Duration) (any, *rterr.Error) {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if pool == nil {
		return nil, rterr.New(rterr.CodeSchedulerState)
	}
	if timeout == 0 {
		timeout = s.opts.Timeout
	}
	return pool.Execute(ctx, functionID, args, timeout)
}

// Snapshot is the scheduler status surface, generalizing Controller's
// GetStatus()/GetStats()/GetTotalJobs() from job counts to routine and
// worker counts.
type Snapshot struct {
	State         State
	Uptime        time.Duration
	RoutineCounts map[rtroutine.State]int
	TotalRoutines int
	FunctionCount int
	Workers       []rtbalance.WorkerStatus
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	state := s.state
	start := s.startTime
	pool := s.pool
	s.mu.Unlock()

	snap := Snapshot{
		State:         state,
		Uptime:        time.Since(start),
		RoutineCounts: s.handles.Stats(),
		TotalRoutines: s.handles.Len(),
		FunctionCount: s.registry.Len(),
	}
	if pool != nil {
		snap.Workers = pool.Statuses()
	}
	return snap
}

// Shutdown stops the worker pool (if any) and marks the scheduler
// terminated. It is idempotent: shutting down a terminated scheduler is a
// no-op.
func (s *Scheduler) Shutdown(ctx *rtctx.Context) *rterr.Error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	s.state = StateShuttingDown
	pool := s.pool
	s.mu.Unlock()

	log.Info("scheduler shutting down")
	if pool != nil {
		pool.Stop()
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
	log.Info("scheduler terminated")
	return nil
}
