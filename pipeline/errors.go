package pipeline

import (
	"errors"
	"fmt"

	"github.com/justapithecus/glean/jobref"
	"github.com/justapithecus/glean/metrics"
	"github.com/justapithecus/glean/record"
)

// Abort kinds. Only these four escape the orchestrator.
var (
	// ErrParse: the job message is malformed. Not retryable.
	ErrParse = jobref.ErrParse
	// ErrFetch: the original artifact could not be downloaded.
	ErrFetch = errors.New("fetch failed")
	// ErrStore: the compressed artifact could not be uploaded.
	ErrStore = errors.New("store failed")
	// ErrPersist: the processing record could not be written.
	ErrPersist = record.ErrPersist
)

// ErrInsufficientBudget is wrapped into an abort when the remaining context
// budget is below the configured minimum before a stage starts.
var ErrInsufficientBudget = errors.New("insufficient time budget")

// Exit codes for one-shot processing.
const (
	ExitCodeDone          = 0
	ExitCodeRetryable     = 1
	ExitCodeParse         = 2
	ExitCodeInvalidConfig = 3
)

// AbortError reports a job that ended in the Aborted state.
type AbortError struct {
	// State is the last state reached before the abort.
	State State
	// Kind is one of ErrParse, ErrFetch, ErrStore, ErrPersist.
	Kind error
	// Err is the underlying cause.
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted after %s: %v: %v", e.State, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AbortError) Unwrap() error {
	return e.Err
}

// Is matches the abort kind.
func (e *AbortError) Is(target error) bool {
	return target == e.Kind
}

// Retryable reports whether redelivering the job may succeed.
// Parse failures are permanent; every other abort is retryable.
func (e *AbortError) Retryable() bool {
	return e.Kind != ErrParse
}

// Retryable reports whether err should lead to redelivery. Errors that are
// not aborts (cancellation, shutdown) are retryable; nil is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return true
}

// ExitCode maps a Process error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeDone
	case errors.Is(err, ErrParse):
		return ExitCodeParse
	default:
		return ExitCodeRetryable
	}
}

// Outcome maps a Process error to a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeDone
	case errors.Is(err, ErrParse):
		return metrics.OutcomeParseError
	case errors.Is(err, ErrFetch):
		return metrics.OutcomeFetchError
	case errors.Is(err, ErrStore):
		return metrics.OutcomeStoreError
	default:
		return metrics.OutcomePersistError
	}
}
