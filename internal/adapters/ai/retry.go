package ai

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"comparoo/pkg/errors"
)

// RetryPolicy decides how failed provider calls are repeated.
// Backoff builds a fresh schedule per call since backoff.BackOff is stateful.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func() backoff.BackOff
	Retryable   func(err error) bool
}

// DefaultRetryPolicy retries rate limits and transport failures with
// exponential backoff from 0.5s capped at 2s.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(500*time.Millisecond, 2*time.Second),
		Retryable:   IsRetryable,
	}
}

// ExponentialBackoff doubles from initial up to max without jitter or an elapsed-time cap
func ExponentialBackoff(initial, max time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = initial
		expo.MaxInterval = max
		expo.Multiplier = 2
		expo.RandomizationFactor = 0
		expo.MaxElapsedTime = 0
		expo.Reset()
		return expo
	}
}

// IsRetryable reports whether err is a rate limit or transport failure
func IsRetryable(err error) bool {
	var pe *errors.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == errors.ProviderRateLimit || pe.Kind == errors.ProviderTransport
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// onRetry, when set, is called before each backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var schedule backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Backoff != nil {
		schedule = p.Backoff()
	}
	bo := backoff.WithMaxRetries(backoff.WithContext(schedule, ctx), uint64(attempts-1))

	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempt := 0
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
		attempt++
	}

	err := backoff.RetryNotify(op, bo, notify)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return errors.Wrap(err, "retry cancelled")
	}
	return err
}
