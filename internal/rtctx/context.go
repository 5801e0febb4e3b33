// ============================================================================
// concurra Context - Cancellation Tree With Deadlines And Values
// ============================================================================
//
// Package: internal/rtctx
// File: context.go
// Purpose: The cancellation-propagating context tree of spec §4.4: a single
//          Background root, WithCancel/WithDeadline/WithTimeout/WithValue
//          derivations, and a process-wide optional cancellation hook used
//          to push cancellation state across the worker boundary (§4.7).
//
// Design: the teacher leans on context.WithTimeout(context.Background(), …)
// at every suspension point (internal/worker/worker.go's execute(),
// worker_pool.go's pollerLoop/ackLoop). Rather than reinvent a tree the
// stdlib already gets right — "if the parent already has an earlier
// deadline, return the parent" is exactly context.WithDeadline's own
// behavior — concurra's Context wraps a stdlib context.Context and layers
// on the two things spec §4.4 needs that stdlib doesn't have: a
// process-unique id (for the worker-boundary hook) and that hook itself.
//
// ============================================================================

package rtctx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

// CancelFunc cancels the context it was returned alongside.
type CancelFunc func()

// Context is a node in the cancellation tree.
type Context struct {
	std context.Context
	id  string
}

// Hook is invoked at most once per cancelled context, with the context's
// id and its terminal error, so an external collaborator (the parallel
// scheduler, per spec §4.4/§4.7) can invalidate in-flight work tied to
// that id.
type Hook func(id string, err *rterr.Error)

var hookPtr atomic.Pointer[Hook]

// SetCancellationHook installs the process-wide cancellation hook,
// replacing any previously installed hook.
func SetCancellationHook(h Hook) {
	hookPtr.Store(&h)
}

// ClearCancellationHook removes the process-wide cancellation hook.
func ClearCancellationHook() {
	hookPtr.Store(nil)
}

// Background returns the uncancellable root of the tree.
func Background() *Context {
	return &Context{std: context.Background(), id: newID()}
}

// ID returns the context's process-unique identifier.
func (c *Context) ID() string {
	return c.id
}

// Std exposes the wrapped stdlib context.Context, for collaborators (like
// rtclock.Sleep) built against the standard interface.
func (c *Context) Std() context.Context {
	return c.std
}

// WithCancel derives a child that can be cancelled explicitly or by
// parent cancellation.
func WithCancel(parent *Context) (*Context, CancelFunc) {
	std, cancel := context.WithCancel(parent.std)
	child := &Context{std: std, id: newID()}
	child.watch()
	return child, CancelFunc(cancel)
}

// WithDeadline derives a child bound by d. If parent already has an
// earlier deadline, the returned context still cancels with the parent
// (spec §4.4: "returns the parent" behavior) — matching stdlib
// context.WithDeadline exactly.
func WithDeadline(parent *Context, d time.Time) (*Context, CancelFunc) {
	std, cancel := context.WithDeadline(parent.std, d)
	child := &Context{std: std, id: newID()}
	child.watch()
	return child, CancelFunc(cancel)
}

// WithTimeout is WithDeadline(parent, time.Now().Add(d)).
func WithTimeout(parent *Context, d time.Duration) (*Context, CancelFunc) {
	return WithDeadline(parent, time.Now().Add(d))
}

// WithValue derives a child carrying an extra key/value pair, visible to
// Value lookups on this context and any of its descendants.
func WithValue(parent *Context, key, value any) *Context {
	return &Context{std: context.WithValue(parent.std, key, value), id: parent.id}
}

// watch spawns the single goroutine that fires the cancellation hook (if
// any is installed at the time of cancellation) exactly once.
func (c *Context) watch() {
	go func() {
		<-c.std.Done()
		if h := hookPtr.Load(); h != nil {
			(*h)(c.id, translate(c.std.Err()))
		}
	}()
}

// Deadline reports the context's deadline, if any.
func (c *Context) Deadline() (time.Time, bool) {
	return c.std.Deadline()
}

// Done returns a channel closed when the context is cancelled or its
// deadline elapses; nil for an uncancellable context (Background, or a
// WithValue derivation of one).
func (c *Context) Done() <-chan struct{} {
	return c.std.Done()
}

// Err returns the terminal cancellation error, or nil if still live.
func (c *Context) Err() *rterr.Error {
	return translate(c.std.Err())
}

// Value looks up key locally then walks the parent chain (delegated to
// the wrapped stdlib context, which implements exactly this walk).
func (c *Context) Value(key any) any {
	return c.std.Value(key)
}

func translate(err error) *rterr.Error {
	switch err {
	case nil:
		return nil
	case context.Canceled:
		return rterr.New(rterr.CodeContextCancelled)
	case context.DeadlineExceeded:
		return rterr.New(rterr.CodeContextDeadlineExceeded)
	default:
		return rterr.Newf(rterr.CodeContextCancelled, "cause", err.Error())
	}
}

func newID() string {
	return uuid.NewString()
}

// RestrictedAcrossWorkers marks Context as a single-address-space object:
// a live *Context may not cross the worker boundary (spec §4.7). Workers
// run against a separate worker-side context that the cancellation hook
// above cancels alongside the caller's — see internal/rtworker's pool.go
// and boundary.go.
func (c *Context) RestrictedAcrossWorkers() {}
