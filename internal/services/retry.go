package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/muvi/internal/apperr"
)

// RetryPolicy drives the backoff loop around backend calls. Only errors
// classified as backend-transient are retried; 4xx-style failures surface
// immediately.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetry matches the pipeline-wide policy: 3 attempts, 2s base delay,
// doubling per attempt.
var DefaultRetry = RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}

// Retry runs op under policy. A timeout counts as an attempt; context
// cancellation aborts the loop without a further attempt.
func Retry(ctx context.Context, policy RetryPolicy, label string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			delay := policy.BaseDelay * time.Duration(1<<uint(attempt-1))
			log.Printf("[Retry] %s attempt %d/%d in %v", label, attempt+1, policy.Attempts, delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled while backing off: %w", label, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !apperr.Transient(lastErr) {
			return lastErr
		}
		log.Printf("[Retry] %s attempt %d failed (transient): %v", label, attempt+1, lastErr)
	}
	return apperr.Wrap(apperr.KindBackendPermanent, lastErr, "%s failed after %d attempts", label, policy.Attempts)
}
