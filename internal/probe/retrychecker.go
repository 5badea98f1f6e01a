package probe

import (
	"context"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, t Target) domain.CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, t)
		if last.Success {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 {
		last.ErrorMessage += " (after retries)"
	}
	return last
}
