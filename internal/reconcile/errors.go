package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/velora/internal/ir"
)

// RunError is a run-level failure, as opposed to the per-requirement
// failures recorded in the result.
//
// Kinds:
//   - SourceUnavailable: the requirement document could not be read
//   - Cancelled: the run was cancelled before any action was planned
//   - PersistWriteFailure: the mapping store commit did not complete, so
//     nothing from this run was persisted
type RunError struct {
	// Kind identifies the error category.
	Kind ir.ErrorKind

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, when one was started.
	RunID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsPersistFailure reports whether err is a failed mapping store commit.
// Uses errors.As to handle wrapped errors.
func IsPersistFailure(err error) bool {
	return hasKind(err, ir.KindPersistWriteFailure)
}

// IsSourceUnavailable reports whether err means the requirement document
// could not be read. Bare ir.ErrSourceUnavailable and ir.ErrSourceMalformed
// errors count too.
func IsSourceUnavailable(err error) bool {
	return hasKind(err, ir.KindSourceUnavailable) ||
		errors.Is(err, ir.ErrSourceUnavailable) ||
		errors.Is(err, ir.ErrSourceMalformed)
}

// IsCancelled reports whether the run stopped before planning completed.
func IsCancelled(err error) bool {
	return hasKind(err, ir.KindCancelled)
}

func hasKind(err error, kind ir.ErrorKind) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}
