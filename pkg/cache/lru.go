package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache 基于 golang-lru 的带过期本地缓存
//
// expirable.LRU 只支持统一 TTL，单项过期时间记录在 entry 中，读取时校验
type lruCache struct {
	lru *expirable.LRU[string, lruEntry]
	ttl time.Duration
	mu  sync.Mutex
}

type lruEntry struct {
	value    []byte
	expireAt time.Time
}

// NewLRUCache 创建本地 LRU 缓存
func NewLRUCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	ttl := config.DefaultExpiration
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &lruCache{lru: expirable.NewLRU[string, lruEntry](size, nil, ttl), ttl: ttl}
}

func (c *lruCache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expireAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *lruCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	c.lru.Add(key, c.entry(value, expiration))
	return nil
}

func (c *lruCache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *lruCache) SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Get(ctx, key); ok {
		return false, nil
	}
	c.lru.Add(key, c.entry(value, expiration))
	return true, nil
}

func (c *lruCache) Clear(ctx context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *lruCache) Close() error {
	return nil
}

func (c *lruCache) entry(value []byte, expiration time.Duration) lruEntry {
	if expiration <= 0 || expiration > c.ttl {
		expiration = c.ttl
	}
	return lruEntry{value: value, expireAt: time.Now().Add(expiration)}
}
