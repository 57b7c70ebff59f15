package status

import (
	"context"
	"time"

	"interoprelay/types"
)

// Query returns the record for key, polling every interval for up to window while
// it is absent. A key that never shows up yields a synthesized not_found record.
func Query(ctx context.Context, store Store, key types.StatusKey, interval, window time.Duration) (*types.RelayStatus, error) {
	rec, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	if window <= 0 || interval <= 0 {
		return types.NotFoundStatus(key), nil
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return types.NotFoundStatus(key), nil
		case <-ticker.C:
			rec, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				return rec, nil
			}
		}
	}
}
