package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyMTError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", context.Canceled, "canceled"},
		{"wrapped canceled", fmt.Errorf("translate: %w", context.Canceled), "canceled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"generic", errors.New("boom"), "mt_failed"},
	}
	for _, tc := range cases {
		if got := ClassifyMTError(tc.err); got != tc.want {
			t.Errorf("%s: ClassifyMTError = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestIsRetryableMTError(t *testing.T) {
	for _, code := range []string{"rate_limited", "timeout", "unavailable", "mt_failed"} {
		if !IsRetryableMTError(code) {
			t.Errorf("expected %q to be retryable", code)
		}
	}
	for _, code := range []string{"bad_request", "auth_failed", ""} {
		if IsRetryableMTError(code) {
			t.Errorf("expected %q to not be retryable", code)
		}
	}
}

func TestDisableFlagTripsAndExpires(t *testing.T) {
	f := NewDisableFlag(10*time.Millisecond, 100*time.Millisecond)
	now := time.Now()
	f.nowFn = func() time.Time { return now }

	if f.Disabled() {
		t.Fatal("should not be disabled before any trip")
	}
	f.Trip()
	if !f.Disabled() {
		t.Fatal("should be disabled immediately after trip")
	}
	now = now.Add(50 * time.Millisecond)
	if f.Disabled() {
		t.Fatal("should have expired after backoff window")
	}
}

func TestDisableFlagReset(t *testing.T) {
	f := NewDisableFlag(10*time.Millisecond, 100*time.Millisecond)
	f.Trip()
	f.Reset()
	if f.Disabled() {
		t.Fatal("reset should clear disabled state")
	}
}
