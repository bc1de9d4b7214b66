package bloom

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/redis/go-redis/v9"
)

// CountingBloomFilter redis-based counting bloom filter that supports
// deletion, so entries can be withdrawn when a message is requeued.
type CountingBloomFilter struct {
	redis     redis.Cmdable
	keyPrefix string
	m         uint64 // bit array size
	k         uint8  // number of hash functions
	maxCount  uint8  // maximum counter value to prevent overflow
}

// Config configuration for counting bloom filter
type Config struct {
	KeyPrefix         string  // redis key prefix
	ExpectedElements  uint64  // expected number of elements
	FalsePositiveRate float64 // desired false positive rate
	MaxCount          uint8   // maximum counter value (default 15)
}

// NewCountingBloomFilter creates a new counting bloom filter
func NewCountingBloomFilter(client redis.Cmdable, config Config) *CountingBloomFilter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cbf"
	}
	if config.ExpectedElements == 0 {
		config.ExpectedElements = 1000000
	}
	if config.FalsePositiveRate == 0 {
		config.FalsePositiveRate = 0.01
	}
	if config.MaxCount == 0 {
		config.MaxCount = 15
	}

	m := optimalM(config.ExpectedElements, config.FalsePositiveRate)
	k := optimalK(m, config.ExpectedElements)

	return &CountingBloomFilter{
		redis:     client,
		keyPrefix: config.KeyPrefix,
		m:         m,
		k:         k,
		maxCount:  config.MaxCount,
	}
}

// Add adds an element to the filter
func (cbf *CountingBloomFilter) Add(ctx context.Context, element string) error {
	pipe := cbf.redis.TxPipeline()
	for _, h := range cbf.getHashes(element) {
		key := cbf.slotKey(h)
		pipe.IncrBy(ctx, key, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bloom add: %w", err)
	}
	return nil
}

// Remove removes an element from the filter. Removing an element that was
// never added corrupts the counters, so callers gate on Test first.
func (cbf *CountingBloomFilter) Remove(ctx context.Context, element string) error {
	present, err := cbf.Test(ctx, element)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	pipe := cbf.redis.TxPipeline()
	for _, h := range cbf.getHashes(element) {
		key := cbf.slotKey(h)
		pipe.DecrBy(ctx, key, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bloom remove: %w", err)
	}
	return nil
}

// Test reports whether the element may be in the filter. False means
// definitely absent; true may be a false positive.
func (cbf *CountingBloomFilter) Test(ctx context.Context, element string) (bool, error) {
	pipe := cbf.redis.TxPipeline()
	cmds := make([]*redis.StringCmd, 0, cbf.k)
	for _, h := range cbf.getHashes(element) {
		cmds = append(cmds, pipe.Get(ctx, cbf.slotKey(h)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("bloom test: %w", err)
	}

	for _, cmd := range cmds {
		val, err := cmd.Int64()
		if err == redis.Nil || val <= 0 {
			return false, nil
		}
		if err != nil && err != redis.Nil {
			return false, fmt.Errorf("bloom test: %w", err)
		}
	}
	return true, nil
}

// Clear removes all filter state
func (cbf *CountingBloomFilter) Clear(ctx context.Context) error {
	iter := cbf.redis.Scan(ctx, 0, cbf.keyPrefix+":*", 1000).Iterator()
	for iter.Next(ctx) {
		if err := cbf.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (cbf *CountingBloomFilter) slotKey(h uint64) string {
	return fmt.Sprintf("%s:%d", cbf.keyPrefix, h%cbf.m)
}

// getHashes derives k hash positions via double hashing over fnv64
func (cbf *CountingBloomFilter) getHashes(element string) []uint64 {
	h1 := fnv.New64()
	h1.Write([]byte(element))
	a := h1.Sum64()

	h2 := fnv.New64a()
	h2.Write([]byte(element))
	b := h2.Sum64()

	hashes := make([]uint64, cbf.k)
	for i := uint8(0); i < cbf.k; i++ {
		hashes[i] = a + uint64(i)*b
	}
	return hashes
}

func optimalM(n uint64, p float64) uint64 {
	return uint64(math.Ceil(-1 * float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
}

func optimalK(m, n uint64) uint8 {
	k := uint8(math.Round(float64(m) / float64(n) * math.Log(2)))
	if k < 1 {
		k = 1
	}
	return k
}
