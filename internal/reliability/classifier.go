// Package reliability classifies transient provider errors and computes
// backoff for the translator's "MT disabled" gate (the MT_FAILED error
// taxonomy entry).
package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableMTError classifies whether a translator-layer error is a
// transient condition workers should back off and retry, versus a fatal
// one that should surface immediately.
func IsRetryableMTError(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "timeout", "unavailable", "mt_failed":
		return true
	default:
		return false
	}
}

// ClassifyMTError derives the code IsRetryableMTError expects from a raw
// error returned by mtengine.Provider.Translate. A canceled context means
// the caller is shutting down, not that the provider failed, so it is
// never retryable; a deadline exceeded maps to "timeout"; everything else
// falls into the generic "mt_failed" bucket, since the provider interface
// carries no finer-grained error codes.
func ClassifyMTError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "mt_failed"
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
