// ============================================================================
// concurra Sync Primitives - Once
// ============================================================================
//
// Package: internal/rtsync
// File: once.go
// Purpose: Run a function exactly once across concurrent callers, with the
//          sticky-error semantics spec §4.3 / §9 Open Questions settles on:
//          if the function fails, "done" is still reached and every caller
//          (including future ones) observes the same error.
//
// Grounded on the pack's singleton pattern (Jkenyut-nvx-go-helper/validator
// builds a validator.Validate once via sync.Once), generalized to a
// user-supplied fallible function instead of a fixed initializer.
//
// ============================================================================

package rtsync

import "sync"

// Once runs fn exactly once; every caller, concurrent or later, observes
// the same return value.
type Once struct {
	mu   sync.Mutex
	done bool
	err  error
}

func NewOnce() *Once {
	return &Once{}
}

// Do runs fn on the first call only. If fn returns an error, done is still
// marked true and that error is returned to every subsequent caller —
// there is no retry path by design (see DESIGN.md Open Question).
func (o *Once) Do(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return o.err
	}
	o.err = fn()
	o.done = true
	return o.err
}

func (o *Once) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// RestrictedAcrossWorkers marks Once as a single-address-space object per
// spec §4.7 — see internal/rtworker's boundary.go.
func (o *Once) RestrictedAcrossWorkers() {}
