package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/justapithecus/glean/metrics"
)

func TestAbortError_Kinds(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		kind      error
		retryable bool
		exitCode  int
		outcome   string
	}{
		{ErrParse, false, ExitCodeParse, metrics.OutcomeParseError},
		{ErrFetch, true, ExitCodeRetryable, metrics.OutcomeFetchError},
		{ErrStore, true, ExitCodeRetryable, metrics.OutcomeStoreError},
		{ErrPersist, true, ExitCodeRetryable, metrics.OutcomePersistError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			err := fmt.Errorf("job: %w", &AbortError{State: StateParsed, Kind: tt.kind, Err: cause})

			if !errors.Is(err, tt.kind) {
				t.Error("errors.Is should match the kind")
			}
			if !errors.Is(err, cause) {
				t.Error("errors.Is should match the cause")
			}
			if Retryable(err) != tt.retryable {
				t.Errorf("Retryable = %v, want %v", Retryable(err), tt.retryable)
			}
			if ExitCode(err) != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", ExitCode(err), tt.exitCode)
			}
			if Outcome(err) != tt.outcome {
				t.Errorf("Outcome = %q, want %q", Outcome(err), tt.outcome)
			}
		})
	}
}

func TestRetryable_NonAbort(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
	if !Retryable(context.Canceled) {
		t.Error("bare errors are retryable")
	}
	if ExitCode(nil) != ExitCodeDone || Outcome(nil) != metrics.OutcomeDone {
		t.Error("nil maps to done")
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateStart, StateParsed, StateFetched, StateCompressed, StateStored, StateExtracted, StateRecorded} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !StateDone.Terminal() || !StateAborted.Terminal() {
		t.Error("done and aborted are terminal")
	}
}
