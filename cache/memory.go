package cache

import (
	"context"
	"sync"
	"time"

	"github.com/peelkit/peel/types"
	"github.com/peelkit/peel/utils"
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = time.Hour
)

type MemoryConfig struct {
	MaxEntries      int    `json:"max_entries"`
	CleanupInterval string `json:"cleanup_interval"`
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a TTL map with a background janitor. It is safe for
// concurrent use by in-flight requests.
type MemoryCache struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      *MemoryConfig
	logger      types.Logger
	data        map[string]memoryEntry
	mu          sync.RWMutex
	cleanupDone chan struct{}
}

func NewMemoryCache(ctx context.Context, logger types.Logger, cfg *types.CacheConfig) (*MemoryCache, error) {
	memConfig := &MemoryConfig{
		MaxEntries:      10000,
		CleanupInterval: "5m",
	}

	if cfg != nil && cfg.Config != nil {
		if err := utils.UnmarshalConfig(cfg.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	interval, err := time.ParseDuration(memConfig.CleanupInterval)
	if err != nil || interval <= 0 {
		interval = 5 * time.Minute
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	c := &MemoryCache{
		ctx:         cacheCtx,
		cancel:      cancel,
		config:      memConfig,
		logger:      logger,
		data:        make(map[string]memoryEntry),
		cleanupDone: make(chan struct{}),
	}

	go c.cleanupLoop(interval)

	return c, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.config.MaxEntries {
		c.evictExpiredLocked()
		if len(c.data) >= c.config.MaxEntries {
			return nil
		}
	}

	c.data[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	c.cancel()
	<-c.cleanupDone
	return nil
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *MemoryCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}
