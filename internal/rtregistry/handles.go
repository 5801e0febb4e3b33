// ============================================================================
// concurra Routine Handle Table
// ============================================================================
//
// Package: internal/rtregistry
// File: handles.go
// Purpose: Lifecycle bookkeeping for every in-flight and terminal routine
//          handle (spec.md Data Model "Routine handle" row), so
//          pkg/scheduler can answer "how many routines are
//          pending/running/completed/failed" without threading a counter
//          through every call site.
//
// Grounded on internal/jobmanager/job_manager.go's hybrid design: one
// map as single source of truth plus a Stats() accessor. Unlike JobManager,
// a routine's state lives inside its own *rtroutine.Handle (state
// transitions happen on the routine's goroutine, not through this table),
// so HandleTable skips JobManager's secondary per-state maps — there is
// nothing for them to keep in sync with — and Stats() scans the primary
// map instead. The map-plus-Stats() shape is what's reused, not the
// indexing strategy underneath it.
//
// ============================================================================

package rtregistry

import (
	"sync"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtroutine"
)

// HandleTable is a process-wide table of routine handles keyed by id.
type HandleTable struct {
	mu      sync.RWMutex
	handles map[string]*rtroutine.Handle
}

func NewHandleTable() *HandleTable {
	return &HandleTable{handles: make(map[string]*rtroutine.Handle)}
}

// Register adds h to the table, keyed by its own id.
func (t *HandleTable) Register(h *rtroutine.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[h.ID()] = h
}

// Get looks up a handle by id.
func (t *HandleTable) Get(id string) (*rtroutine.Handle, *rterr.Error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[id]
	if !ok {
		return nil, rterr.Newf(rterr.CodeRegistryNotFound, "id", id)
	}
	return h, nil
}

// Remove evicts a handle, e.g. once a caller has consumed its result.
func (t *HandleTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, id)
}

// Len reports the number of tracked handles, live or terminal.
func (t *HandleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handles)
}

// Stats tallies tracked handles by state, mirroring the
// pending/in_flight/completed/dead shape of JobManager.Stats().
func (t *HandleTable) Stats() map[rtroutine.State]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := map[rtroutine.State]int{
		rtroutine.StatePending:   0,
		rtroutine.StateRunning:   0,
		rtroutine.StateCompleted: 0,
		rtroutine.StateFailed:    0,
		rtroutine.StateCancelled: 0,
	}
	for _, h := range t.handles {
		out[h.State()]++
	}
	return out
}
