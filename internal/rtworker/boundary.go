// ============================================================================
// concurra Worker Boundary - Primitives Across The Worker Boundary
// ============================================================================
//
// Package: internal/rtworker
// File: boundary.go
// Purpose: spec.md §4.7 — a single-address-space primitive (rtsync's
//          Mutex/RWMutex/WaitGroup/Semaphore/Once, rtchan.Channel[T],
//          rtctx.Context) must not cross the worker boundary as a live
//          value. Workers instead run against a worker-side context the
//          pool derives per request (pool.go), and any attempt to pass a live
//          primitive as an execute argument or a worker's return value is
//          rejected with worker.cross-thread-sync-unsupported.
//
// Design: spec §9 REDESIGN FLAGS rules out a "proxy that throws on every
// mutation" — mutating a cross-thread primitive must not be expressible
// in the type system, not merely reported at runtime. Each restricted
// type exports a no-arg RestrictedAcrossWorkers() marker method and no
// mutating method is ever added to anything a worker can hold; this file
// only has to detect a live primitive slipping into an argument or result
// and turn it into a tagged error before it reaches a worker goroutine.
// The detection itself borrows the teacher's reflection-free preference
// where possible, but args/results are typed any (spec.md §6.2's wire
// shape), so a shallow reflect.Value walk is the only way to catch one
// nested inside a struct, slice, or map without teaching every call site
// about every restricted type by name.
//
// ============================================================================

package rtworker

import (
	"reflect"
	"time"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtctx"
)

// maxScanDepth bounds the sanitizeCrossing walk so a self-referential or
// deeply nested argument can't make rejection unbounded work.
const maxScanDepth = 4

// ContextSnapshot is an immutable id/deadline/error view of a caller's
// *rtctx.Context. Pool.Execute does not attach one to a request; workers
// observe cancellation through the worker-side context derived in pool.go.
type ContextSnapshot struct {
	ID          string
	HasDeadline bool
	Deadline    time.Time
	Err         *rterr.Error
}

// snapshotContext captures the crossing-safe view of ctx at call time.
func snapshotContext(ctx *rtctx.Context) ContextSnapshot {
	deadline, hasDeadline := ctx.Deadline()
	return ContextSnapshot{
		ID:          ctx.ID(),
		HasDeadline: hasDeadline,
		Deadline:    deadline,
		Err:         ctx.Err(),
	}
}

// Done reports whether the context the snapshot was taken from had
// already failed (cancelled or deadline-exceeded) at snapshot time.
func (s ContextSnapshot) Done() bool {
	return s.Err != nil
}

// liveBoundaryObject is satisfied by every single-address-space
// primitive via its RestrictedAcrossWorkers marker method (rtsync's
// Mutex/RWMutex/WaitGroup/Semaphore/Once, rtchan.Channel[T],
// rtctx.Context). Declared locally: Go interface satisfaction for an
// exported method works across packages without those packages
// depending on this one back, so no import cycle is introduced.
type liveBoundaryObject interface {
	RestrictedAcrossWorkers()
}

// sanitizeCrossing rejects v if it is, or contains (through pointers,
// interfaces, struct fields, slice/array elements, or map values, up to
// maxScanDepth levels deep), a live
// boundary-restricted primitive. Pass-through values are returned
// unchanged; rejected ones come back as worker.cross-thread-sync-
// unsupported instead of reaching a worker goroutine or a caller.
func sanitizeCrossing(v any) *rterr.Error {
	if v == nil {
		return nil
	}
	if _, ok := v.(liveBoundaryObject); ok {
		return rterr.New(rterr.CodeCrossThreadSync)
	}
	return scanValue(reflect.ValueOf(v), 0)
}

func scanValue(rv reflect.Value, depth int) *rterr.Error {
	if depth > maxScanDepth || !rv.IsValid() {
		return nil
	}
	if rv.CanInterface() {
		if _, ok := rv.Interface().(liveBoundaryObject); ok {
			return rterr.New(rterr.CodeCrossThreadSync)
		}
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return scanValue(rv.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := scanValue(rv.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, key := range rv.MapKeys() {
			if err := scanValue(rv.MapIndex(key), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			field := rv.Field(i)
			if !field.CanInterface() {
				continue
			}
			if err := scanValue(field, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
