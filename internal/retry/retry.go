// Package retry runs remote operations under a bounded retry budget.
package retry

import (
	"context"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Policy describes how transient failures are retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Multiplier grows the delay after each retry. Values <= 1 keep it fixed.
	Multiplier float64
	// MaxDelay caps the grown delay. Zero means no cap.
	MaxDelay time.Duration
	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a policy with the given attempts and fixed delay.
func NewPolicy(maxAttempts int, delay time.Duration) *Policy {
	return &Policy{MaxAttempts: maxAttempts, Delay: delay}
}

// WithSleeper replaces the wait function. Tests use it to observe delays
// without waiting.
func (p *Policy) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Policy {
	p.sleep = sleep
	return p
}

// Do runs op until it succeeds, fails permanently, or the attempt budget is
// spent. Only *domain.TransientError failures are retried. A nil policy runs
// op exactly once and returns its error unchanged.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return op(ctx)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !domain.IsTransient(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := p.wait(ctx, delay); err != nil {
			return zero, err
		}
		delay = p.next(delay)
	}

	return zero, &domain.RetryExhaustedError{Attempts: attempts, Last: lastErr}
}

func (p *Policy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && n > p.MaxDelay {
		return p.MaxDelay
	}
	return n
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
