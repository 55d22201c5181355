// SPDX-License-Identifier: Apache-2.0
// Package resilience provides bounded retry and the credential-rotating
// invoker that every agent call goes through.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/imoran/clade/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the backoff delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier grows the delay between consecutive retries (default 2.0).
	Multiplier float64

	// IsRecoverable determines whether an error should be retried.
	// If nil, all errors are retried.
	IsRecoverable func(error) bool

	// Jitter randomizes backoff to avoid synchronized retries. A value of
	// 0.1 means ±10%.
	Jitter float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: isRecoverableDefault,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// normalized fills in zero-valued fields so Do can rely on them.
func (rc RetryConfig) normalized() RetryConfig {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = isRecoverableDefault
	}
	return rc
}

// Do runs fn up to MaxAttempts times, backing off between attempts. It
// returns nil on the first success, the error itself when IsRecoverable
// rejects it, and the last error once attempts are exhausted.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	rc = rc.normalized()

	var lastErr error
	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !rc.IsRecoverable(err) || attempt == rc.MaxAttempts {
			break
		}
		if err := rc.wait(ctx, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

// wait blocks for the attempt's backoff delay or until ctx is done.
func (rc RetryConfig) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(rc.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.New(errors.CodeCancelled, "context canceled during retry", ctx.Err()).
			WithContext("attempt", attempt).
			WithContext("max_attempts", rc.MaxAttempts)
	case <-timer.C:
		return nil
	}
}

// backoff computes the delay before retry number attempt (1-based), growing
// exponentially, capped at MaxDelay, with jitter applied last.
func (rc RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(attempt-1))
	if ceiling := float64(rc.MaxDelay); delay > ceiling {
		delay = ceiling
	}
	if rc.Jitter > 0 {
		delay += delay * rc.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// isRecoverableDefault retries anything that does not explicitly declare
// itself unrecoverable.
func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*errors.CladeError); ok {
		return ce.Recoverable
	}
	return true
}
