// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// retryWithBackoff drives a submission attempt up to maxAttempts times with
// exponential backoff, logging each retry through the invocation's logger. It
// checks ctx.Err() between retries to respect cancellation immediately.
//
// submit returns (shouldRetry bool, err error). If shouldRetry is false, err
// is returned immediately (nil on success, non-nil on a definitive backend
// rejection). On retry exhaustion, the last error is returned.
func retryWithBackoff(
	ctx context.Context,
	logger *slog.Logger,
	maxAttempts int,
	baseBackoff time.Duration,
	submit func() (retry bool, err error),
) error {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			logger.Debug("retrying service submission",
				"attempt", attempt, "previous_error", lastErr)
			time.Sleep(baseBackoff * time.Duration(1<<(attempt-1)))
		}

		retry, err := submit()
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}
