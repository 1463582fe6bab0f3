// Package cache provides the response-cache backends consumed by the cache
// middleware: a local TTL map and a redis-backed store.
package cache

import (
	"context"

	"github.com/peelkit/peel/types"
)

// New selects a backend by config type.
func New(ctx context.Context, logger types.Logger, cfg *types.CacheConfig) (types.Cache, error) {
	if cfg == nil {
		return NewMemoryCache(ctx, logger, nil)
	}

	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(ctx, logger, cfg)
	case "redis":
		return NewRedisCache(ctx, logger, cfg)
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "%s", cfg.Type)
	}
}
