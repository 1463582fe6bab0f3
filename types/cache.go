package types

import (
	"context"
	"time"
)

// Cache is the shared-state collaborator used by the cache middleware. Its
// implementations carry their own concurrency discipline; the request
// pipeline itself never shares mutable state across contexts.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
