// ============================================================================
// concurra Function Registry - Process-Wide Callable Table
// ============================================================================
//
// Package: internal/rtregistry
// File: functions.go
// Purpose: Register a callable once under a process-unique id so routines
//          dispatched in-process or handed to a worker (spec.md §4.4/§6.1)
//          can refer to it by id across the worker boundary instead of
//          shipping a closure.
//
// Grounded on the same map+RWMutex shape job_manager.go uses for jobs —
// the teacher already demonstrates this idiom once per domain object
// (JobManager for jobs); this registry is the same idiom applied to
// registered functions, with usage counters in place of job status.
//
// ============================================================================

package rtregistry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtctx"
)

// Callable is a function registered for dispatch by id.
type Callable func(ctx *rtctx.Context, args any) (any, *rterr.Error)

type funcEntry struct {
	id         string
	callable   Callable
	metadata   map[string]any
	usageCount int64
	createdAt  time.Time
	lastUsedAt time.Time
}

// ReplicationHook is called whenever a function is newly registered, so a
// worker pool can push the callable out to its workers ahead of first use.
type ReplicationHook func(id string, c Callable)

// FunctionRegistry is the process-wide table of registered callables.
type FunctionRegistry struct {
	mu      sync.RWMutex
	entries map[string]*funcEntry
	onNewFn ReplicationHook
}

// NewFunctionRegistry builds an empty registry. onNewFn may be nil; if
// set, it runs synchronously from Register for every newly added id.
func NewFunctionRegistry(onNewFn ReplicationHook) *FunctionRegistry {
	return &FunctionRegistry{
		entries: make(map[string]*funcEntry),
		onNewFn: onNewFn,
	}
}

// Register adds a callable under id (or a fresh uuid if id is empty) and
// rejects a request to reuse an id already in the table.
func (r *FunctionRegistry) Register(id string, c Callable, metadata map[string]any) (string, *rterr.Error) {
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return "", rterr.Newf(rterr.CodeRegistryDuplicateID, "id", id)
	}
	now := time.Now()
	r.entries[id] = &funcEntry{
		id:        id,
		callable:  c,
		metadata:  metadata,
		createdAt: now,
	}
	r.mu.Unlock()

	if r.onNewFn != nil {
		r.onNewFn(id, c)
	}
	return id, nil
}

// Invoke looks up id, bumps its usage counters, and calls it.
func (r *FunctionRegistry) Invoke(ctx *rtctx.Context, id string, args any) (any, *rterr.Error) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, rterr.Newf(rterr.CodeRegistryNotFound, "id", id)
	}
	entry.usageCount++
	entry.lastUsedAt = time.Now()
	callable := entry.callable
	r.mu.Unlock()

	return callable(ctx, args)
}

// Unregister removes id from the table.
func (r *FunctionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// FunctionStats is the observable usage snapshot for one registered id.
type FunctionStats struct {
	ID         string
	UsageCount int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Stats reports usage snapshots for every registered function.
func (r *FunctionRegistry) Stats() []FunctionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FunctionStats, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, FunctionStats{
			ID:         e.id,
			UsageCount: e.usageCount,
			CreatedAt:  e.createdAt,
			LastUsedAt: e.lastUsedAt,
		})
	}
	return out
}

func (r *FunctionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
