package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"Travault/pkg/cache"
	"Travault/pkg/response"

	"github.com/gin-gonic/gin"
)

type IdemStore interface {
	Set(key string, ttl time.Duration) bool // 写入成功返回 true，已存在返回 false
}

type memoryIdemStore struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemoryIdemStore() *memoryIdemStore { return &memoryIdemStore{m: make(map[string]time.Time)} }

func (s *memoryIdemStore) Set(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.m[key]; ok && exp.After(now) {
		return false
	}
	// 写入时顺便清理过期键
	for k, exp := range s.m {
		if !exp.After(now) {
			delete(s.m, k)
		}
	}
	s.m[key] = now.Add(ttl)
	return true
}

// CacheIdemStore 基于缓存 SetNX，redis 缓存下可跨实例去重
type CacheIdemStore struct {
	Cache cache.Cache
}

func (s CacheIdemStore) Set(key string, ttl time.Duration) bool {
	ok, err := s.Cache.SetNX(context.Background(), "idem:"+key, []byte{1}, ttl)
	if err != nil {
		// 缓存不可用时不拦截
		return true
	}
	return ok
}

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 重复请求的拒绝窗口
	Store      IdemStore
}

// IdempotencyMiddleware 拒绝窗口期内同一用户的重复提交
//
// 键由 用户 + 方法 + 路径 + (Idempotency-Key 或请求体哈希) 组成
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	store := cfg.Store
	if store == nil {
		store = newMemoryIdemStore()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if token == "" {
			b, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(b))
			h := sha256.Sum256(b)
			token = hex.EncodeToString(h[:])
		}
		user := currentUserID(c)
		if user == "" {
			user = clientIPFromRequest(c)
		}
		key := strings.Join([]string{user, c.Request.Method, c.Request.URL.Path, token}, "|")
		if !store.Set(key, cfg.TTL) {
			response.AbortWithStatus(c, http.StatusConflict, "Duplicate request", nil)
			return
		}
		c.Next()
	}
}
