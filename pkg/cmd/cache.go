package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/hotdash/actionqueue/pkg/cache"
)

// NewCache selects the ranked-listing cache. A redis:// URL gets the shared
// Redis cache; an empty URL falls back to the in-process one.
func NewCache(ctx context.Context, redisURL string) (cache.Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return cache.NewMemory(), nil
	}

	c, err := cache.NewRedis(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
	}

	return c, nil
}
