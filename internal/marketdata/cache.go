package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dexpaper-trading-bot/config"
	"dexpaper-trading-bot/internal/logging"
)

// Cache is a Redis-backed response cache for feed lookups. When Redis is
// down the cache reports misses and the clients go straight to the feeds,
// so a broken Redis never breaks a cycle.
type Cache struct {
	client       *redis.Client
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
	log           *logging.Logger
}

// Cache key formats per feed
const (
	keyTrendingPools = "feed:trending:%s"
	keyNewPools      = "feed:new:%s"
	keyBestPair      = "feed:pair:%s:%s"
	keyFearGreed     = "feed:fear_greed"
	keyGlobalMarket  = "feed:global_market"
)

// NewCache connects to Redis and returns a cache, degraded if unreachable.
// A nil cache is valid and always misses.
func NewCache(cfg config.RedisConfig) *Cache {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Cache{
		client:        client,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		log:           logging.WithComponent("marketdata.cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.log.Warn("Redis unreachable, feed cache degraded", "error", err)
		return c
	}

	c.healthy = true
	c.lastCheck = time.Now()
	c.log.Info("Feed cache connected", "address", cfg.Address)
	return c
}

// IsHealthy reports whether Redis is currently usable
func (c *Cache) IsHealthy() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures {
		if c.healthy {
			c.log.Warn("Feed cache marked unhealthy", "failures", c.failureCount)
		}
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.log.Info("Feed cache recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

func (c *Cache) checkHealth() {
	c.mu.RLock()
	shouldCheck := !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		} else {
			c.mu.Lock()
			c.lastCheck = time.Now()
			c.mu.Unlock()
		}
	}()
}

// GetJSON loads a cached response into dest. Returns false on miss or
// when the cache is degraded.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	c.checkHealth()
	if !c.IsHealthy() {
		return false
	}

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.recordFailure()
		}
		return false
	}
	c.recordSuccess()

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false
	}
	return true
}

// SetJSON stores a response with TTL, best-effort
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	c.checkHealth()
	if !c.IsHealthy() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.recordFailure()
		return
	}
	c.recordSuccess()
}

// Ping checks Redis connectivity
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("feed cache disabled")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TrendingPoolsKey builds the cache key for a network's trending pools
func TrendingPoolsKey(network string) string {
	return fmt.Sprintf(keyTrendingPools, network)
}

// NewPoolsKey builds the cache key for a network's new pools
func NewPoolsKey(network string) string {
	return fmt.Sprintf(keyNewPools, network)
}

// BestPairKey builds the cache key for a token's best pair
func BestPairKey(network, tokenAddress string) string {
	return fmt.Sprintf(keyBestPair, network, tokenAddress)
}

// FearGreedKey returns the sentiment cache key
func FearGreedKey() string {
	return keyFearGreed
}

// GlobalMarketKey returns the global market cache key
func GlobalMarketKey() string {
	return keyGlobalMarket
}
