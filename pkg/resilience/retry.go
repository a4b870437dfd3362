// SPDX-License-Identifier: Apache-2.0
// Package resilience provides retry, circuit breaker, timeout and fallback
// helpers for calls that leave the process.
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jllopis/agora/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the initial backoff delay.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter randomises each delay; 0.1 means ±10%.
	Jitter float64

	// IsRecoverable determines if an error should be retried.
	// If nil, errors are retried unless an *errors.Error says otherwise.
	IsRecoverable func(error) bool

	// Notify is called before each wait with the failed attempt's error.
	Notify func(err error, wait time.Duration)
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
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

// Do executes fn with retry logic, returning the last error if all attempts
// fail. Non-recoverable errors stop immediately. A done ctx stops the wait
// and its error is returned.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	_, err := Retry(ctx, rc, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}
	operation := func() (T, error) {
		value, err := fn()
		if err != nil && !recoverable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}
	notify := func(err error, wait time.Duration) {
		if rc.Notify != nil {
			rc.Notify(err, wait)
		}
	}
	return backoff.RetryNotifyWithData(operation, rc.backOff(ctx), notify)
}

func (rc RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if rc.InitialDelay > 0 {
		exp.InitialInterval = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		exp.MaxInterval = rc.MaxDelay
		exp.InitialInterval = min(exp.InitialInterval, rc.MaxDelay)
	}
	if rc.Multiplier > 0 {
		exp.Multiplier = rc.Multiplier
	}
	exp.RandomizationFactor = rc.Jitter
	// The attempt count and ctx bound the retries, not elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return typed.Recoverable
	}
	return true
}
