package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper go-cache包装器
type goCacheWrapper struct {
	cache *gocache.Cache
}

// NewGoCache 创建基于go-cache的本地缓存
func NewGoCache(config LocalConfig) Cache {
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &goCacheWrapper{cache: gocache.New(config.DefaultExpiration, cleanup)}
}

func (gc *goCacheWrapper) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, found := gc.cache.Get(key); found {
		b, ok := value.([]byte)
		return b, ok
	}
	return nil, false
}

func (gc *goCacheWrapper) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) Delete(ctx context.Context, key string) error {
	gc.cache.Delete(key)
	return nil
}

// SetNX go-cache 的 Add 在键存在时返回错误
func (gc *goCacheWrapper) SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error) {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	return gc.cache.Add(key, value, expiration) == nil, nil
}

func (gc *goCacheWrapper) Clear(ctx context.Context) error {
	gc.cache.Flush()
	return nil
}

func (gc *goCacheWrapper) Close() error {
	return nil
}
