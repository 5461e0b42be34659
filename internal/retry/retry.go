// Package retry implements the small fixed retry applied to transient store
// failures on hot paths. Handler failures are never retried here; those go
// through the inbox attempts counter instead.
package retry

import (
	"context"
	"time"
)

// Do runs fn up to attempts times, sleeping the backoff schedule between
// tries. The last schedule entry repeats when attempts exceeds its length.
// Returns the first nil error, the last error, or the context error if the
// context ends mid-backoff.
func Do(ctx context.Context, attempts int, schedule []time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffAt(schedule, i)):
		}
	}

	return err
}

func backoffAt(schedule []time.Duration, i int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if i >= len(schedule) {
		i = len(schedule) - 1
	}
	return schedule[i]
}
