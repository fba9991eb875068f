package db

import (
	"context"
	"time"
)

// BookkeepingTimeout bounds a store write issued after the caller's context ended.
const BookkeepingTimeout = 10 * time.Second

// Detached returns a context that keeps ctx's values but not its deadline or
// cancellation, bounded by BookkeepingTimeout. Workers use it for the writes
// that follow a sidecar call, so a task timeout that fires mid-call still lets
// the session be reverted, failed or recorded.
func Detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), BookkeepingTimeout)
}
