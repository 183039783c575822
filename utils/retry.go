package utils

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Retry calls fn every interval until it reports done, returns an error or
// ctx is done. The first call happens immediately.
func Retry(
	ctx context.Context, clock clockwork.Clock, interval time.Duration,
	fn func(ctx context.Context) (bool, error),
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
	}
}
