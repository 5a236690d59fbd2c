// Package resilience implements the pipeline-level resilience plugins:
// retry, circuit breaker, rate limiter, backpressure, batching, versioning,
// and schema validation. None of these participate in the routing state
// machine; they are pure wrappers and hooks composed on top of it.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// RetryableFn is a call a RetryPolicy wraps; it returns nil, or a
// *xerrors.Error indicating whether retrying it is meaningful.
type RetryableFn func(ctx context.Context, attempt int) error

// RetryPolicy wraps a call with exponential delay base*factor^attempt
// capped at max with +-25% jitter, skipping non-retryable errors and
// invoking an optional observer before each sleep.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	OnRetry     func(attempt int, err error, delay time.Duration)
}

// Canned policies, from cautious to persistent.
func RetryFast() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: 25 * time.Millisecond, Factor: 2, Max: 200 * time.Millisecond}
}

func RetryStandard() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: 100 * time.Millisecond, Factor: 2, Max: 5 * time.Second}
}

func RetryAggressive() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Base: 50 * time.Millisecond, Factor: 2.5, Max: 30 * time.Second}
}

func RetryOnce() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*xerrors.Error); ok {
		return e.Retryable
	}
	// unknown error shapes are treated as non-retryable; an uncoded error
	// carries no retryability signal.
	return false
}

// Execute runs fn, retrying on retryable errors. fn is invoked at most
// MaxAttempts times total.
func (p RetryPolicy) Execute(ctx context.Context, fn RetryableFn) error {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	b := &backoff.Backoff{
		Min:    p.Base,
		Max:    p.Max,
		Factor: orDefault(p.Factor, 2),
		Jitter: false, // the library's jitter is unbounded-low; the +-25% band is applied below instead
	}
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == max || !isRetryable(err) {
			return lastErr
		}
		delay := jitter25(b.Duration())
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// jitter25 applies +-25% jitter to d.
func jitter25(d time.Duration) time.Duration {
	delta := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
