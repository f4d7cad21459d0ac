package lordn

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 100 * time.Millisecond
	defaultRetryMaxDelay   = 5 * time.Second
	defaultRetryMultiplier = 2.0
)

// RetryPolicy is a capped exponential backoff filtered by a RetryClassifier.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// Multiplier grows the wait after each failure.
	Multiplier float64
	// Retryable selects which errors are retried.
	Retryable RetryClassifier
}

// RetryNotify is called before waiting for the next attempt.
type RetryNotify func(attempt int, err error, wait time.Duration)

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultRetryMultiplier
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryClassifier
	}

	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts
// are exhausted. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, notify RetryNotify, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.BaseDelay
	policy.MaxInterval = p.MaxDelay
	policy.Multiplier = p.Multiplier

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !p.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}

	return err
}
