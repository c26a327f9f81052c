package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jengzang/gpx-loop-cutter/internal/metrics"
)

const (
	writeAttempts = 5
	writeDelay    = 50 * time.Millisecond
	writeMaxDelay = 2 * time.Second
)

// withWriteRetry runs a write and retries it while sqlite reports the
// database as busy or locked. Other errors are returned at once.
func withWriteRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = fn()
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(writeAttempts),
		retry.Delay(writeDelay),
		retry.MaxDelay(writeMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			metrics.DBRetries.WithLabelValues(op).Inc()
			logger.Debug("retrying database write",
				"operation", op,
				"attempt", n+1,
				"error", err)
		}),
		retry.RetryIf(isBusy),
	)
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
