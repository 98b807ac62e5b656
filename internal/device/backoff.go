package device

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// reconnectPolicy returns the exponential backoff policy of
// reconnectWithBackoff, bounded by maxElapsed.
func reconnectPolicy(ctx context.Context, maxElapsed time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxElapsed
	return backoff.WithContext(b, ctx)
}

// reconnectWithBackoff retries fn until it succeeds, the context is
// cancelled, or maxElapsed is exceeded. No adapter calls it: a transport
// read error moves an adapter to the Error state and is not retried.
func reconnectWithBackoff(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	return backoff.Retry(fn, reconnectPolicy(ctx, maxElapsed))
}
