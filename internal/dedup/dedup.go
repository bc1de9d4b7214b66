package dedup

import (
	"context"
	"sync"

	localbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"peermarket/pkg/bloom"
)

// Deduper answers "has this message id been processed before?" ahead of
// the message store. A negative answer is authoritative; a positive one
// may be a false positive and the store remains the arbiter.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// Config dedup cache configuration
type Config struct {
	KeyPrefix         string
	ExpectedElements  uint64
	FalsePositiveRate float64
}

// Cache two-tier dedup cache: an in-process bloom filter in front of a
// redis counting bloom filter. The counting tier supports Remove so an
// operator requeue can withdraw an id.
type Cache struct {
	mu     sync.RWMutex
	local  *localbloom.BloomFilter
	remote *bloom.CountingBloomFilter
}

// NewCache creates a dedup cache
func NewCache(client redis.Cmdable, cfg Config) *Cache {
	if cfg.ExpectedElements == 0 {
		cfg.ExpectedElements = 1000000
	}
	if cfg.FalsePositiveRate == 0 {
		cfg.FalsePositiveRate = 0.01
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dedup"
	}

	return &Cache{
		local: localbloom.NewWithEstimates(uint(cfg.ExpectedElements), cfg.FalsePositiveRate),
		remote: bloom.NewCountingBloomFilter(client, bloom.Config{
			KeyPrefix:         cfg.KeyPrefix,
			ExpectedElements:  cfg.ExpectedElements,
			FalsePositiveRate: cfg.FalsePositiveRate,
		}),
	}
}

// Seen reports whether the id may already be processed. The local tier
// answers definite negatives without touching redis; the remote tier
// survives restarts.
func (c *Cache) Seen(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	hit := c.local.TestString(id)
	c.mu.RUnlock()
	if !hit {
		return false, nil
	}
	return c.remote.Test(ctx, id)
}

// Add marks the id processed in both tiers
func (c *Cache) Add(ctx context.Context, id string) error {
	c.mu.Lock()
	c.local.AddString(id)
	c.mu.Unlock()
	return c.remote.Add(ctx, id)
}

// Remove withdraws the id from the remote tier. The local tier cannot
// forget; its residual false positive just falls through to redis.
func (c *Cache) Remove(ctx context.Context, id string) error {
	return c.remote.Remove(ctx, id)
}

// Noop deduper that never remembers anything; every check falls through
// to the message store.
type Noop struct{}

// Seen always reports unseen
func (Noop) Seen(ctx context.Context, id string) (bool, error) { return false, nil }

// Add does nothing
func (Noop) Add(ctx context.Context, id string) error { return nil }

// Remove does nothing
func (Noop) Remove(ctx context.Context, id string) error { return nil }
