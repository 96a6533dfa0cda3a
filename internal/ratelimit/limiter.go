package ratelimit

import "context"

// RateLimiter paces upstream verification calls per scope. One scope is shared
// by every concurrently running batch loop in the fleet, so the per-second
// budget holds across batches, not just within one.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
