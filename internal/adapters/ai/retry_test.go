package ai

import (
	"context"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/pkg/errors"
)

func fastPolicy(attempts int) RetryPolicy {
	p := DefaultRetryPolicy(attempts)
	p.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return p
}

func TestExponentialBackoff(t *testing.T) {
	schedule := ExponentialBackoff(500*time.Millisecond, 2*time.Second)()

	assert.Equal(t, 500*time.Millisecond, schedule.NextBackOff())
	assert.Equal(t, time.Second, schedule.NextBackOff())
	assert.Equal(t, 2*time.Second, schedule.NextBackOff())
	assert.Equal(t, 2*time.Second, schedule.NextBackOff())

	fresh := ExponentialBackoff(500*time.Millisecond, 2*time.Second)()
	assert.Equal(t, 500*time.Millisecond, fresh.NextBackOff())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", errors.NewProviderError("p", errors.ProviderRateLimit, 429, errors.New("slow down")), true},
		{"transport", errors.NewProviderError("p", errors.ProviderTransport, 503, errors.New("bad gateway")), true},
		{"auth", errors.NewProviderError("p", errors.ProviderAuth, 401, errors.New("bad key")), false},
		{"timeout", errors.NewProviderError("p", errors.ProviderTimeout, 0, errors.New("slow")), false},
		{"validation", errors.NewValidationError("choices", "empty", nil), false},
		{"plain", errors.New("other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(errors.Wrap(tt.err, "chat")))
		})
	}
}

func TestRetryPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	retries := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.NewProviderError("p", errors.ProviderRateLimit, 429, errors.New("busy"))
		}
		return nil
	}, func(int, error) { retries++ })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetryPolicy_StopsOnFatal(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.NewProviderError("p", errors.ProviderAuth, 401, errors.New("bad key"))
	}, nil)

	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.ProviderAuth, pe.Kind)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_SingleAttemptNeverRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(1).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.NewProviderError("p", errors.ProviderRateLimit, 429, errors.New("busy"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_RetryAttemptsAreNumbered(t *testing.T) {
	var seen []int
	_ = fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		return errors.NewProviderError("p", errors.ProviderTransport, 502, errors.New("bad gateway"))
	}, func(attempt int, err error) { seen = append(seen, attempt) })

	assert.Equal(t, []int{0, 1}, seen)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.NewProviderError("p", errors.ProviderTransport, 0, errors.New("reset"))
	}, nil)

	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.ProviderTransport, pe.Kind)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_CancelledDuringBackoff(t *testing.T) {
	p := DefaultRetryPolicy(3)
	p.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Do(ctx, func(ctx context.Context) error {
		cancel()
		return errors.NewProviderError("p", errors.ProviderRateLimit, 429, errors.New("busy"))
	}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
