package cache

import (
	"fmt"
	"strings"
	"time"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	if config.Local.DefaultExpiration <= 0 {
		config.Local.DefaultExpiration = 5 * time.Minute
	}
	switch strings.ToLower(config.Type) {
	case "", "lru", "local":
		return NewLRUCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis, config.Local.DefaultExpiration)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
