package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/template"
)

// RuntimeError represents an error detected while driving a tick.
//
// Runtime errors include:
//   - Tick aborted: a previous tick failed fatally, the engine refuses work
//   - Tick expired: a TickContext was used after its tick returned
//   - Deferred failed: a queued command returned an error
//   - Journal failed: an applied script could not be recorded
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Tick is the tick number the error belongs to, 0 if none.
	Tick int64

	// Root is the descriptor of the affected root, if any.
	Root string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeTickAborted indicates the tick, or an earlier one, failed fatally.
	ErrCodeTickAborted RuntimeErrorCode = "TICK_ABORTED"

	// ErrCodeTickExpired indicates a TickContext outlived its tick.
	ErrCodeTickExpired RuntimeErrorCode = "TICK_EXPIRED"

	// ErrCodeDeferredFailed indicates a deferred command returned an error.
	ErrCodeDeferredFailed RuntimeErrorCode = "DEFERRED_FAILED"

	// ErrCodeJournalFailed indicates the recorder rejected a root or tick
	// after its scripts were applied.
	ErrCodeJournalFailed RuntimeErrorCode = "JOURNAL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Root != "" {
		msg = fmt.Sprintf("%s (tick=%d, root=%s)", msg, e.Tick, e.Root)
	} else if e.Tick != 0 {
		msg = fmt.Sprintf("%s (tick=%d)", msg, e.Tick)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsTickAborted returns true if the error aborted a tick.
// Uses errors.As to handle wrapped errors.
func IsTickAborted(err error) bool {
	return hasCode(err, ErrCodeTickAborted)
}

// IsTickExpired returns true if a TickContext was used after its tick.
func IsTickExpired(err error) bool {
	return hasCode(err, ErrCodeTickExpired)
}

// IsDeferredFailed returns true if a deferred command failed.
func IsDeferredFailed(err error) bool {
	return hasCode(err, ErrCodeDeferredFailed)
}

// IsJournalFailed returns true if the journal fell behind the graph.
func IsJournalFailed(err error) bool {
	return hasCode(err, ErrCodeJournalFailed)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsFatal reports whether err poisons the engine.
//
// Fatal: any failure while applying a script, unknown or mismatched
// templates, attribute errors, failed deferred commands, journal writes
// that fell behind the graph, and aborted ticks.
//
// Not fatal: errors a diff engine or DiffFactory returns before anything
// was applied, and context cancellation. Tick reports those per root and
// the engine keeps running.
//
// A joined error is fatal if any of its parts is.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsFatal(e) {
				return true
			}
		}
		return false
	}
	var ae *mutation.ApplyError
	if errors.As(err, &ae) {
		return true
	}
	switch {
	case mutation.IsContractViolation(err),
		registry.IsMissingMapping(err),
		template.IsUnknownTemplate(err),
		template.IsMismatch(err),
		adapter.IsAttributeError(err),
		IsDeferredFailed(err),
		IsJournalFailed(err),
		IsTickAborted(err):
		return true
	}
	return false
}

func newAbortedError(tick int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTickAborted,
		Message: "engine stopped after a fatal error",
		Tick:    tick,
		Err:     cause,
	}
}

func newExpiredError(tick int64, op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTickExpired,
		Message: fmt.Sprintf("%s called after tick %d returned", op, tick),
		Tick:    tick,
	}
}

func newDeferredError(tick int64, index int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDeferredFailed,
		Message: fmt.Sprintf("deferred command %d failed", index),
		Tick:    tick,
		Details: map[string]string{"index": fmt.Sprintf("%d", index)},
		Err:     cause,
	}
}

func newJournalError(tick int64, root string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeJournalFailed,
		Message: "journal write failed",
		Tick:    tick,
		Root:    root,
		Err:     cause,
	}
}
