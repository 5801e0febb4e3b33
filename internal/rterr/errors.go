// ============================================================================
// concurra Error Taxonomy - Stable Codes Across the Core
// ============================================================================
//
// Package: internal/rterr
// File: errors.go
// Purpose: Give every core subsystem (channel, context, mutex, rwmutex,
//          semaphore, waitgroup, selector, validators, worker pool) a single
//          tagged error shape instead of ad-hoc sentinel values per package.
//
// Design:
//   Every failure surfaced to a caller of the core carries a stable Code
//   (string, see the Code constants below) plus an optional Context map for
//   extra diagnostic fields (e.g. "seq", "jobID", "workerID"). Error wraps
//   an optional underlying cause so errors.Is / errors.As keep working
//   through the core boundary.
//
// ============================================================================

package rterr

import "fmt"

// Code is a stable identifier a caller may branch on. Codes never change
// spelling once shipped; see spec §7 for the full taxonomy.
type Code string

const (
	CodeChannelClosed        Code = "channel.closed"
	CodeChannelClosedEmpty   Code = "channel.closed-empty"
	CodeChannelAlreadyClosed Code = "channel.already-closed"
	CodeChannelSendTimeout   Code = "channel.send-timeout"
	CodeChannelRecvTimeout   Code = "channel.receive-timeout"
	CodeChannelBufferFull    Code = "channel.buffer-full"
	CodeChannelEmpty         Code = "channel.empty"

	CodeContextCancelled        Code = "context.cancelled"
	CodeContextDeadlineExceeded Code = "context.deadline-exceeded"

	CodeMutexNotLocked     Code = "mutex.not-locked"
	CodeMutexLockTimeout   Code = "mutex.lock-timeout"
	CodeRWMutexNotRLocked  Code = "rwmutex.not-read-locked"
	CodeRWMutexNotWLocked  Code = "rwmutex.not-write-locked"
	CodeRWMutexRLockTmout  Code = "rwmutex.rlock-timeout"
	CodeRWMutexWLockTmout  Code = "rwmutex.wlock-timeout"
	CodeRWMutexTooManyRead Code = "rwmutex.too-many-readers"

	CodeSemaphoreTimeout Code = "semaphore.timeout"
	CodeSemaphoreReset   Code = "semaphore.reset"

	CodeWaitGroupNegative    Code = "waitgroup.negative"
	CodeWaitGroupWaitTimeout Code = "waitgroup.wait-timeout"

	CodeSelectTimeout Code = "select.timeout"
	CodeSelectBadSend Code = "select.bad-send"

	CodeValidationTimeout     Code = "validation.timeout"
	CodeValidationBufferSize  Code = "validation.buffer-size"
	CodeValidationConcurrency Code = "validation.concurrency"

	CodeWorkerTimeout    Code = "worker.timeout"
	CodeWorkerDied       Code = "worker.died"
	CodeWorkerUnknownMsg Code = "worker.unknown-message"
	CodeCrossThreadSync  Code = "worker.cross-thread-sync-unsupported"
	CodeSchedulerState   Code = "scheduler.invalid-state"

	CodeRegistryDuplicateID Code = "registry.duplicate-id"
	CodeRegistryNotFound    Code = "registry.not-found"
)

// Error is the tagged error every core operation returns on failure.
type Error struct {
	Code    Code
	Context map[string]any
	Cause   error
}

// New builds a tagged error with no context and no wrapped cause.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf builds a tagged error with a context map built from alternating
// key/value pairs, e.g. Newf(CodeChannelSendTimeout, "timeout", d).
func Newf(code Code, kv ...any) *Error {
	ctx := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx[key] = kv[i+1]
	}
	return &Error{Code: code, Context: ctx}
}

// Wrap attaches an underlying cause to a tagged error.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Cause)
		}
		return string(e.Code)
	}
	return fmt.Sprintf("%s %v", e.Code, e.Context)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets callers write errors.Is(err, rterr.New(rterr.CodeChannelClosed))
// as well as the more idiomatic errors.Is(err, rterr.CodeChannelClosed)-style
// comparisons via Matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Matches reports whether err is an *Error carrying the given code.
func Matches(err error, code Code) bool {
	var e *Error
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Code == code
}
