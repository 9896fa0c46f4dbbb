package session

import (
	"context"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the bounded retry rule applied at the broker boundary:
// a fixed number of attempts separated by a fixed delay, retrying only the
// error kinds Retryable accepts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient broker errors three times, 500ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 500 * time.Millisecond, Retryable: domain.IsTransient}
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// its attempts or ctx is done. It returns the last error seen.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a callback invoked before every retry with the
// attempt number that just failed.
func (p RetryPolicy) DoNotify(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsTransient
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
}

// ReconnectPolicy is the reconnection budget: exponential backoff between
// InitialDelay and MaxDelay, at most MaxAttempts connect calls.
type ReconnectPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultReconnectPolicy allows five attempts starting at one second.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 15 * time.Second}
}

func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}
