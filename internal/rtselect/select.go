// ============================================================================
// concurra Selector - Multi-Way Ready-Case Polling With Backoff
// ============================================================================
//
// Package: internal/rtselect
// File: select.go
// Purpose: The multi-way selector of spec §4.2: an immediate pass over every
//          case, an optional default, and otherwise backoff-polling starting
//          at 1ms, multiplying by 1.5 each round, capped at 100ms, until a
//          case is ready, timeout elapses, or the context is cancelled.
//
// Lineage: Go generics can't hold a slice of Channel[T] for heterogeneous T,
// so a case is represented the way the teacher represents a unit of
// dispatchable work in internal/worker/worker_pool.go's pollerLoop — a
// closure checked on a fixed polling cadence — generalized from "one task
// channel" to "N independently-typed channel operations racing for
// readiness." Send/Recv below adapt rtchan's non-blocking TrySend/TryReceive
// fast paths into that closure shape.
//
// ============================================================================

package rtselect

import (
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/concurra/internal/rtchan"
	"github.com/ChuLiYu/concurra/internal/rtclock"
	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtctx"
)

const (
	initialBackoff = time.Millisecond
	backoffFactor  = 1.5
	maxBackoff     = 100 * time.Millisecond
)

// MetricsSink receives the number of polling passes a Select call made
// (the immediate pass counts as 1), recorded at every exit: a fired case,
// the default, a timeout, or ctx cancellation (spec.md §2/§3's
// client_golang domain-stack entry). A nil sink (the default) is a no-op.
type MetricsSink interface {
	RecordSelectPollRounds(rounds int)
}

var metricsPtr atomic.Pointer[MetricsSink]

// SetMetrics installs the process-wide selector metrics sink, replacing
// any previously installed one. Pass nil to stop recording.
func SetMetrics(sink MetricsSink) {
	if sink == nil {
		metricsPtr.Store(nil)
		return
	}
	metricsPtr.Store(&sink)
}

func recordPollRounds(rounds int) {
	if s := metricsPtr.Load(); s != nil {
		(*s).RecordSelectPollRounds(rounds)
	}
}

// Case is one arm of a Select call. It must not block: it reports whether
// it fired (matched) this poll, and if it fired, whether it fired with an
// error (e.g. receiving from a closed channel is a match, not a retry).
type Case func() (matched bool, err *rterr.Error)

// Send builds a Case that non-blockingly sends v on ch.
func Send[T any](ch *rtchan.Channel[T], v T) Case {
	return func() (bool, *rterr.Error) {
		err := ch.TrySend(v)
		switch {
		case err == nil:
			return true, nil
		case err.Code == rterr.CodeChannelBufferFull:
			return false, nil
		default:
			return true, err
		}
	}
}

// Recv builds a Case that non-blockingly receives from ch into *out.
func Recv[T any](ch *rtchan.Channel[T], out *T) Case {
	return func() (bool, *rterr.Error) {
		v, err := ch.TryReceive()
		switch {
		case err == nil:
			*out = v
			return true, nil
		case err.Code == rterr.CodeChannelEmpty:
			return false, nil
		default:
			*out = v
			return true, err
		}
	}
}

// Select polls cases, in order, for the first one ready.
//
//   - If any case is ready on the first pass, it fires immediately (lowest
//     index wins ties).
//   - Else, if def is non-nil, def runs and Select returns (-1, nil).
//   - Else Select polls with exponential backoff (1ms, ×1.5, capped at
//     100ms) until a case fires, timeout elapses (select.timeout), or ctx
//     is cancelled (context.cancelled / context.deadline-exceeded).
//
// timeout < 0 polls indefinitely, bounded only by ctx.
func Select(ctx *rtctx.Context, timeout time.Duration, def func(), cases ...Case) (int, *rterr.Error) {
	if len(cases) == 0 {
		return -1, rterr.New(rterr.CodeSelectBadSend)
	}

	rounds := 1
	if idx, err, ok := pollOnce(cases); ok {
		recordPollRounds(rounds)
		return idx, err
	}

	if def != nil {
		recordPollRounds(rounds)
		def()
		return -1, nil
	}

	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	backoff := initialBackoff
	for {
		if hasDeadline && time.Now().After(deadline) {
			recordPollRounds(rounds)
			return -1, rterr.Newf(rterr.CodeSelectTimeout, "timeout", timeout)
		}
		select {
		case <-ctx.Done():
			recordPollRounds(rounds)
			return -1, ctx.Err()
		default:
		}

		sleep := backoff
		if hasDeadline {
			if remaining := time.Until(deadline); remaining < sleep {
				sleep = remaining
			}
		}
		if sleep > 0 {
			if serr := rtclock.Sleep(ctx.Std(), sleep); serr != nil {
				rounds++
				if idx, err, ok := pollOnce(cases); ok {
					recordPollRounds(rounds)
					return idx, err
				}
				recordPollRounds(rounds)
				return -1, ctx.Err()
			}
		}

		rounds++
		if idx, err, ok := pollOnce(cases); ok {
			recordPollRounds(rounds)
			return idx, err
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func pollOnce(cases []Case) (int, *rterr.Error, bool) {
	for i, c := range cases {
		if matched, err := c(); matched {
			return i, err, true
		}
	}
	return -1, nil, false
}
