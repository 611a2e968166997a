// internal/nutrition/cache.go
package nutrition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"

	"mcp-nutrient-profile/internal/models"
)

// Cache stores analysis results by content key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CacheKey hashes the food list and timeframe. Any edit to a food, an
// amount, the order or the timeframe yields a new key.
func CacheKey(list models.FoodList) string {
	h := sha256.New()
	fmt.Fprintf(h, "timeframe=%s\n", list.Timeframe)
	for _, it := range list.Items {
		name, _ := json.Marshal(it.Food)
		fmt.Fprintf(h, "%s=%g\n", name, it.Amount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is a bounded in-process cache. When full, the least
// recently used entry is evicted; entries also expire after ttl.
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	c.lru.Add(key, value)
	return nil
}

func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares analysis results between server instances.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: "nutrient-profile:analysis:", ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
