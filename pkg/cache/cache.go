// Package cache provides the short-TTL cache used to fan out ranked
// listings. It is strictly an optimization: every caller must behave
// identically on a miss, and writes to the queue invalidate ranked entries.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the cached value and whether the key was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an explicit TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate drops every key with the given prefix.
	Invalidate(ctx context.Context, prefix string) error

	Close() error
}
