// Package retry provides exponential backoff for the small set of
// operations that talk to flaky externals: webhook delivery and remote
// fetches. Local process and file operations never retry.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Policy holds backoff configuration
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy suits short-lived check invocations: three attempts,
// never more than a few seconds waiting in total.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. Non-transient errors abort immediately.
func Do(ctx context.Context, p Policy, fn func() error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !Transient(err) || attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return lastErr
}

// transientMarkers are error substrings that indicate a failure worth
// retrying. Anything else fails fast.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"status 502",
	"status 503",
	"status 504",
	"eof",
	"broken pipe",
}

// Transient reports whether an error looks like a passing network or
// upstream failure
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
