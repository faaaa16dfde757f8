package uow

import (
	"context"
	"errors"
)

// Retry runs the whole logical unit again on an optimistic version
// conflict, up to attempts times. Exhaustion surfaces the conflict as
// a transient failure for the caller to re-issue.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}

	return err
}
