package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache 缓存接口，值统一为序列化后的字节
type Cache interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set 设置缓存值，expiration<=0 时使用默认过期时间
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// SetNX 键不存在时写入，返回是否写入成功
	SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error)

	// Clear 清空所有缓存
	Clear(ctx context.Context) error

	// Close 关闭缓存连接
	Close() error
}

// Config 缓存配置
type Config struct {
	// 缓存类型: "lru"、"gocache" 或 "redis"
	Type string `json:"type" env:"CACHE_TYPE" default:"lru"`

	Redis RedisConfig `json:"redis"`

	Local LocalConfig `json:"local"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `json:"addr" env:"REDIS_ADDR" default:"localhost:6379"`
	Password     string        `json:"password" env:"REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REDIS_DB" default:"0"`
	PoolSize     int           `json:"pool_size" env:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	// 最大缓存项数，仅 lru 生效
	MaxSize int `json:"max_size" env:"LOCAL_CACHE_MAX_SIZE" default:"1000"`

	// 默认过期时间
	DefaultExpiration time.Duration `json:"default_expiration"`

	// 清理间隔，仅 gocache 生效
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// GetJSON 读取并反序列化
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// SetJSON 序列化后写入
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}
