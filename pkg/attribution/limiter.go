package attribution

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter serializes calls to the analytics collaborator. Injected so tests
// swap in a no-op.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewRateLimiter returns a token bucket of the given queries per second with
// no burst headroom, so calls are strictly serialized.
func NewRateLimiter(qps float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(qps), 1)
}
