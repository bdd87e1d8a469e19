package fetch

import (
	"context"
	"math/rand"
	"time"

	"wallet-sync-go/internal/remote"
)

const (
	DefaultDebounce       = 150 * time.Millisecond
	DefaultMaxRetries     = 2
	DefaultRetryBaseDelay = 500 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// ShouldRetry decides whether a failed remote fetch is attempted again.
// failures counts the attempts that have failed so far.
func ShouldRetry(failures, maxRetries int, err error, offline bool) bool {
	if err == nil || offline {
		return false
	}
	if remote.IsCanceled(err) || remote.IsClientError(err) {
		return false
	}
	return failures <= maxRetries
}

// RetryDelay is exponential backoff with up to one base delay of jitter.
func RetryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := base << attempt
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay + time.Duration(rand.Int63n(int64(base)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
