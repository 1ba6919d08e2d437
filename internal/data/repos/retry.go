package repos

import (
	"context"
	"strings"
	"time"
)

// WithLockRetry runs fn, retrying on lock contention with linear backoff
// (100ms * attempt). Used for guarded status transitions that can race
// with concurrent writers, especially under SQLite.
func WithLockRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(time.Duration(attempt-1) * 100 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		lastErr = fn()
		if lastErr == nil || !isLockContention(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || // sqlite busy
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access")
}
