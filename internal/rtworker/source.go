// ============================================================================
// concurra Worker Request Source - Pull-Mode Ingestion (Optional)
// ============================================================================
//
// Package: internal/rtworker
// File: source.go
// Purpose: Generalizes internal/worker/source.go's JobSource from "poll a
//          job queue, acknowledge a status" into "poll for a registered
//          function execution request, acknowledge its response" — an
//          optional pull-mode front end for callers that want the pool to
//          actively fetch work instead of calling Execute directly.
//
// Most concurra callers drive the pool with Execute (push mode, matching
// spec.md §4.8's synchronous routine-to-worker dispatch). RequestSource
// exists for the same reason JobSource did in the teacher: to decouple the
// pool from one fixed origin of work, without requiring every caller to
// adopt it.
//
// ============================================================================

package rtworker

import (
	"time"

	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rterr"
)

// PendingRequest is one unit of pull-mode work: a function id, its
// arguments, and the timeout to run it under.
type PendingRequest struct {
	ID         string
	FunctionID string
	Args       any
	Timeout    time.Duration
}

// RequestSource is the pull-mode counterpart to Execute.
type RequestSource interface {
	// Poll fetches up to maxRequests pending requests.
	Poll(ctx *rtctx.Context, maxRequests int) ([]PendingRequest, *rterr.Error)
	// Acknowledge reports the outcome of a previously polled request.
	Acknowledge(ctx *rtctx.Context, requestID string, result any, execErr *rterr.Error) *rterr.Error
}

// RunSource polls source on the given interval until ctx is cancelled,
// dispatching every fetched request through p.Execute and acknowledging
// the outcome. Intended to run on its own goroutine.
func (p *Pool) RunSource(ctx *rtctx.Context, source RequestSource, pollInterval time.Duration, batchSize int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqs, err := source.Poll(ctx, batchSize)
			if err != nil {
				continue
			}
			for _, r := range reqs {
				value, execErr := p.Execute(ctx, r.FunctionID, r.Args, r.Timeout)
				_ = source.Acknowledge(ctx, r.ID, value, execErr)
			}
		}
	}
}
