package adapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		attempts  int
		failFirst int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{"first try", 3, 0, false, 1, false},
		{"recovers", 3, 2, false, 3, false},
		{"exhausted", 2, 99, false, 2, true},
		{"permanent stops", 5, 99, true, 1, true},
		{"zero attempts runs once", 0, 0, false, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), tt.attempts, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					if tt.permanent {
						return Permanent(boom)
					}
					return boom
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, boom) {
				t.Errorf("err = %v, want it to wrap boom", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := Retry(ctx, 3, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
