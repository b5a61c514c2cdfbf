package ir

import "errors"

// ErrorKind is the run-level error taxonomy.
type ErrorKind string

const (
	// Fatal: aborts the run before reconciliation begins.
	KindSourceUnavailable ErrorKind = "SourceUnavailable"
	// Recovered: the unit falls back to positional identity.
	KindClassificationAmbiguous ErrorKind = "ClassificationAmbiguous"
	// Recovered: materiality defaults to functional.
	KindJudgeFailure ErrorKind = "JudgeFailure"
	// Recovered: the cache degrades to local-only.
	KindCacheBackendUnavailable ErrorKind = "CacheBackendUnavailable"
	// Recovered at requirement granularity.
	KindGenerationFailure ErrorKind = "GenerationFailure"
	// The run was cancelled before the action completed.
	KindCancelled ErrorKind = "Cancelled"
	// Fatal: the mapping store commit did not complete.
	KindPersistWriteFailure ErrorKind = "PersistWriteFailure"
)

// Sentinel errors shared by readers and LLM providers.
// Wrap them with fmt.Errorf("...: %w", ErrX) so callers can classify with errors.Is.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceMalformed   = errors.New("source malformed")

	ErrRateLimited     = errors.New("rate limited")
	ErrAuth            = errors.New("authentication failed")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrUnavailable     = errors.New("provider unavailable")
)

// Generation failure causes recorded on Issue.Cause.
const (
	CauseRateLimited     = "rate_limited"
	CauseAuth            = "auth"
	CauseMalformedOutput = "malformed_output"
	CauseUnavailable     = "unavailable"
	CauseTimeout         = "timeout"
	CauseUnknown         = "unknown"
)

// GenerationCause maps a generator error to a stable cause string.
func GenerationCause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return CauseRateLimited
	case errors.Is(err, ErrAuth):
		return CauseAuth
	case errors.Is(err, ErrMalformedOutput):
		return CauseMalformedOutput
	case errors.Is(err, ErrUnavailable):
		return CauseUnavailable
	case isTimeout(err):
		return CauseTimeout
	default:
		return CauseUnknown
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
