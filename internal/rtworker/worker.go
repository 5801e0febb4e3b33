// ============================================================================
// concurra Worker - Single Execution Unit Pinned To One OS Thread
// ============================================================================
//
// Package: internal/rtworker
// File: worker.go
// Purpose: The per-worker execution loop of spec.md §4.8 — receive a
//          request, run it against the shared function registry, report a
//          Response, track health, and never let one request's panic take
//          the worker down.
//
// Grounded directly on internal/worker/worker.go's Worker.Run()/execute():
// a goroutine ranging over a request channel, a context.WithTimeout
// wrapper around the call, a captured result. Two generalizations: (1)
// "payload map" becomes "registered function id + args," resolved through
// rtregistry.FunctionRegistry.Invoke; (2) runtime.LockOSThread pins the
// goroutine to one OS thread for the lifetime of the loop, because
// spec.md's "worker pool of OS threads" is the property this is grounded
// against most literally here.
//
// Panic recovery + restart-on-error-threshold is the worker_pool.go
// "Advanced Features (Phase 2)" block the teacher left as a comment;
// concurra implements it for real (see pool.go's health loop), instead of
// leaving the TODO in place.
//
// ============================================================================

package rtworker

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rtregistry"
)

type workerState struct {
	id         int
	requestCh  chan Request
	responseCh chan<- Response
	registry   *rtregistry.FunctionRegistry
	// ctxLookup resolves a request id to the worker-side context the pool
	// derived for it (pool.go's registerReqCtx), so this worker observes
	// the caller's cancellation without ever holding the caller's own
	// *rtctx.Context (spec §4.7).
	ctxLookup func(reqID string) *rtctx.Context

	mu            sync.Mutex
	alive         bool
	errorCount    int
	lastHeartbeat time.Time
	load          int32 // requests currently in flight, read via atomic
}

func newWorkerState(id int, registry *rtregistry.FunctionRegistry, responseCh chan<- Response, ctxLookup func(reqID string) *rtctx.Context) *workerState {
	return &workerState{
		id:            id,
		requestCh:     make(chan Request, 4),
		responseCh:    responseCh,
		registry:      registry,
		ctxLookup:     ctxLookup,
		alive:         true,
		lastHeartbeat: time.Now(),
	}
}

func (w *workerState) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for req := range w.requestCh {
		w.handle(req)
	}
}

func (w *workerState) handle(req Request) {
	atomic.AddInt32(&w.load, 1)
	defer atomic.AddInt32(&w.load, -1)

	resp := Response{ID: req.ID, WorkerID: w.id}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.mu.Lock()
				w.errorCount++
				w.mu.Unlock()
				resp.Success = false
				resp.Error = fmt.Sprintf("panic: %v", r)
			}
		}()

		switch req.Type {
		case MsgHeartbeat:
			w.mu.Lock()
			w.lastHeartbeat = time.Now()
			w.mu.Unlock()
			resp.Success = true

		case MsgRegisterFunction:
			// the registry is shared by reference within this process;
			// nothing to replicate onto this worker.
			resp.Success = true

		case MsgExecute:
			ctx := w.ctxLookup(req.ID)
			if ctx == nil {
				ctx = rtctx.Background()
			}
			value, err := w.registry.Invoke(ctx, req.FunctionID, req.Args)
			if err == nil {
				err = sanitizeCrossing(value)
			}
			if err != nil {
				w.mu.Lock()
				w.errorCount++
				w.mu.Unlock()
				resp.Success = false
				resp.Error = err.Error()
			} else {
				resp.Success = true
				resp.Result = value
			}

		case MsgShutdown:
			resp.Success = true

		default:
			resp.Success = false
			resp.Error = "unknown message type: " + string(req.Type)
		}
	}()

	w.responseCh <- resp
}

func (w *workerState) status() (alive bool, load int, errorCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive, int(atomic.LoadInt32(&w.load)), w.errorCount
}

func (w *workerState) markDead() {
	w.mu.Lock()
	w.alive = false
	w.mu.Unlock()
}
