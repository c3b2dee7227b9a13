// Package retry runs calls against unreliable backends with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how a call is retried. The zero value makes a single
// attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the randomization factor applied to each delay (0 disables it)
	Jitter float64

	// Retryable reports whether err is worth another attempt. Nil retries nothing.
	Retryable func(err error) bool

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait with the failed attempt number (1-based)
	OnRetry func(attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Default returns the policy used for remote model calls: five attempts,
// 4s doubling up to 60s.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   4 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
	}
}

// Delays returns the waits the policy would make between attempts
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	b := p.backOff()
	out := make([]time.Duration, p.MaxAttempts-1)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. A non-retryable error is returned unchanged;
// running out of attempts returns an *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}
	b := p.backOff()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, errors.Join(ctx.Err(), err)
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt >= attempts {
			return zero, &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := b.NextBackOff()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		} else {
			log.Printf("[retry] attempt %d/%d failed: %v (retrying in %s)", attempt, attempts, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
