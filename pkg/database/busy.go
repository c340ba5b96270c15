package database

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// IsBusyError reports whether err is a SQLite BUSY or LOCKED error. It
// matches on the message so that it works with every sqliteshim backend.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

// RetryBusy runs fn, retrying with jittered exponential backoff for as long
// as it fails with a busy error and attempts remain. Any other error is
// returned immediately.
func RetryBusy(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	delay := 50 * time.Millisecond

	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsBusyError(err) || attempt >= maxRetries {
			return err
		}

		wait := delay + time.Duration(rand.Int63n(int64(delay/4)))
		if wait > 2*time.Second {
			wait = 2 * time.Second
		}
		delay *= 2

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
