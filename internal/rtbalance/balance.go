// ============================================================================
// concurra Load Balancer - Worker Selection Strategies
// ============================================================================
//
// Package: internal/rtbalance
// File: balance.go
// Purpose: Pick a healthy worker for the next execute request (spec.md
//          §4.8), pluggable across round-robin, least-busy, and weighted
//          strategies.
//
// Lineage: internal/controller/controller.go dispatches across four fixed
// loops in a hand-rolled round-robin (job index modulo dispatcher count) —
// a crude static load-distribution scheme. concurra generalizes that one
// fixed policy into pluggable Strategy implementations, and borrows
// worker.go's execute()'s use of math/rand for its simulated-failure roll
// to drive the weighted strategy's probabilistic pick.
//
// ============================================================================

package rtbalance

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

// WorkerStatus is the subset of a worker's health a Strategy picks from.
type WorkerStatus struct {
	ID     int
	Alive  bool
	Load   int // tracked load; rtworker.Pool reports requests in flight
}

// Strategy selects an index into the candidates slice.
type Strategy interface {
	Pick(candidates []WorkerStatus) (int, *rterr.Error)
	// Name identifies the strategy for the balancer_picks_total metric
	// label (spec.md §2/§3's client_golang domain-stack entry).
	Name() string
}

func firstHealthy(candidates []WorkerStatus) (int, bool) {
	for i, c := range candidates {
		if c.Alive {
			return i, true
		}
	}
	return 0, false
}

// ============================================================================
// Round robin
// ============================================================================

type roundRobin struct {
	next atomic.Uint64
}

// NewRoundRobin cycles through candidates in order, skipping dead workers.
func NewRoundRobin() Strategy {
	return &roundRobin{}
}

func (r *roundRobin) Name() string { return "round_robin" }

func (r *roundRobin) Pick(candidates []WorkerStatus) (int, *rterr.Error) {
	if len(candidates) == 0 {
		return 0, rterr.New(rterr.CodeWorkerUnknownMsg)
	}
	start := int(r.next.Add(1)-1) % len(candidates)
	for i := 0; i < len(candidates); i++ {
		idx := (start + i) % len(candidates)
		if candidates[idx].Alive {
			return idx, nil
		}
	}
	return firstHealthyOrErr(candidates)
}

// ============================================================================
// Least busy
// ============================================================================

type leastBusy struct{}

// NewLeastBusy always picks the alive worker reporting the lowest load.
func NewLeastBusy() Strategy {
	return leastBusy{}
}

func (leastBusy) Name() string { return "least_busy" }

func (leastBusy) Pick(candidates []WorkerStatus) (int, *rterr.Error) {
	best, found := -1, false
	for i, c := range candidates {
		if !c.Alive {
			continue
		}
		if !found || c.Load < candidates[best].Load {
			best, found = i, true
		}
	}
	if !found {
		return firstHealthyOrErr(candidates)
	}
	return best, nil
}

// ============================================================================
// Weighted (probabilistic, weight proportional to 100-load)
// ============================================================================

type weighted struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewWeighted picks among alive workers with probability proportional to
// 100-Load, the same rand.Intn idiom worker.go's execute() uses for its
// simulated failure roll.
func NewWeighted(seed int64) Strategy {
	return &weighted{rand: rand.New(rand.NewSource(seed))}
}

func (w *weighted) Name() string { return "weighted" }

func (w *weighted) Pick(candidates []WorkerStatus) (int, *rterr.Error) {
	total := 0
	for _, c := range candidates {
		if c.Alive {
			total += weight(c.Load)
		}
	}
	if total == 0 {
		return firstHealthyOrErr(candidates)
	}

	w.mu.Lock()
	roll := w.rand.Intn(total)
	w.mu.Unlock()

	acc := 0
	for i, c := range candidates {
		if !c.Alive {
			continue
		}
		acc += weight(c.Load)
		if roll < acc {
			return i, nil
		}
	}
	return firstHealthyOrErr(candidates)
}

func weight(load int) int {
	w := 100 - load
	if w < 1 {
		w = 1
	}
	return w
}

func firstHealthyOrErr(candidates []WorkerStatus) (int, *rterr.Error) {
	if idx, ok := firstHealthy(candidates); ok {
		return idx, nil
	}
	return 0, rterr.New(rterr.CodeWorkerDied)
}
