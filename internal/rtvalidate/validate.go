// ============================================================================
// concurra Validators - Option Struct Guard Rails
// ============================================================================
//
// Package: internal/rtvalidate
// File: validate.go
// Purpose: Reject malformed durations, buffer sizes, and permit counts
//          before they reach a primitive's constructor (spec §2 item 2).
//
// Pattern: a lazily-built, sync.Once-guarded *validator.Validate singleton,
// the same shape the pack's go-playground/validator helper uses (see
// Jkenyut-nvx-go-helper/validator/validator.go) — one shared instance,
// JSON/YAML tag names surfaced in error messages instead of Go field names.
//
// ============================================================================

package rtvalidate

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ChuLiYu/concurra/internal/rterr"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates an option struct's `validate:"..."` tags and translates
// the first failure (if any) into a tagged rterr.Error with the given code.
func Struct(s any, code rterr.Code) *rterr.Error {
	if err := get().Struct(s); err != nil {
		return rterr.Newf(code, "reason", err.Error())
	}
	return nil
}

// Timeout rejects a timeout value outside the convention used across the
// core: -1 means infinite, 0 means "non-blocking/try-only", any other
// negative value is malformed, and the cap (if positive) bounds the
// maximum finite wait.
func Timeout(d time.Duration, cap time.Duration) *rterr.Error {
	if d < -1 {
		return rterr.Newf(rterr.CodeValidationTimeout, "timeout", d)
	}
	if cap > 0 && d > cap {
		return rterr.Newf(rterr.CodeValidationTimeout, "timeout", d, "cap", cap)
	}
	return nil
}

// BufferSize rejects a negative channel buffer capacity.
func BufferSize(n int) *rterr.Error {
	if n < 0 {
		return rterr.Newf(rterr.CodeValidationBufferSize, "bufferSize", n)
	}
	return nil
}

// Permits rejects a non-positive semaphore max.
func Permits(max int) *rterr.Error {
	if max <= 0 {
		return rterr.Newf(rterr.CodeValidationConcurrency, "max", max)
	}
	return nil
}

// Concurrency rejects a non-positive worker/thread count.
func Concurrency(n int) *rterr.Error {
	if n <= 0 {
		return rterr.Newf(rterr.CodeValidationConcurrency, "count", n)
	}
	return nil
}
