package judge

import (
	"context"
	"fmt"
	"time"
)

// poll invokes fn up to maxAttempts times, sleeping interval between attempts,
// until fn reports done. Both backends use it for single and batch polling.
func poll(ctx context.Context, maxAttempts int, interval time.Duration, fn func(ctx context.Context) (bool, error)) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrPollTimeout, maxAttempts)
}

// reportProgress invokes the observer callback if one was supplied.
func reportProgress(onProgress ProgressFunc, completed, total int) {
	if onProgress == nil || total == 0 {
		return
	}
	onProgress(Progress{
		Completed:  completed,
		Pending:    total - completed,
		Total:      total,
		Percentage: 100 * float64(completed) / float64(total),
	})
}
