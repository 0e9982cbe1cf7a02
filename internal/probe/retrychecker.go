package probe

import (
	"context"
	"time"
)

// RetryChecker repeats the inner check while it fails at the transport level
// (no HTTP status). A non-2xx answer or a permanent failure is final.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		last.Attempts = i + 1
		if last.StatusCode != 0 || last.Permanent || ctx.Err() != nil {
			return last
		}
		if i < attempts-1 && !sleep(ctx, r.Backoff) {
			break
		}
	}
	if last.Attempts > 1 {
		last.Message = last.Message + " (after retries)"
	}
	return last
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
