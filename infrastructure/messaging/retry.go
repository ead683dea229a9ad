package messaging

import (
	"context"
	"time"

	"github.com/AzielCF/az-prospector/dispatch/domain"
	"github.com/sirupsen/logrus"
)

// RetryPolicy wraps one logical send. Transient failures back off exponentially
// (BaseBackoff, 2*BaseBackoff, ...), rate limits wait the vendor hint capped at MaxWait,
// non-retryable outcomes return at once.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxWait     time.Duration

	// Sleep is swapped in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 2 * time.Second, MaxWait: 60 * time.Second}
}

// AttemptFunc performs a single network attempt (1-based n).
type AttemptFunc func(ctx context.Context, n int) domain.Outcome

func (p RetryPolicy) Do(ctx context.Context, backend string, attempt AttemptFunc) domain.Outcome {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var out domain.Outcome
	for n := 1; n <= maxAttempts; n++ {
		out = attempt(ctx, n)
		out.Attempts = n

		if out.Kind == domain.Delivered || out.Kind == domain.NonRetryable {
			return out
		}
		if n == maxAttempts {
			break
		}

		wait := p.waitFor(out, n)
		logrus.WithFields(logrus.Fields{
			"backend": backend,
			"attempt": n,
			"outcome": out.Kind.String(),
			"wait":    wait.String(),
		}).Warnf("[MESSAGING] Send attempt failed: %s", out.Reason)

		if err := sleep(ctx, wait); err != nil {
			return domain.TransientOutcome("interrupted while backing off: " + err.Error())
		}
	}
	return out
}

func (p RetryPolicy) waitFor(out domain.Outcome, n int) time.Duration {
	var wait time.Duration
	switch out.Kind {
	case domain.RateLimited:
		wait = out.RetryAfter
		if wait <= 0 {
			wait = p.BaseBackoff << uint(n+1)
		}
	default:
		wait = p.BaseBackoff << uint(n-1)
	}
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
