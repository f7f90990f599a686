package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localCaches() map[string]Cache {
	cfg := LocalConfig{MaxSize: 100, DefaultExpiration: time.Minute, CleanupInterval: time.Minute}
	return map[string]Cache{
		"lru":     NewLRUCache(cfg),
		"gocache": NewGoCache(cfg),
	}
}

func TestLocalCaches(t *testing.T) {
	ctx := context.Background()
	for name, c := range localCaches() {
		t.Run(name, func(t *testing.T) {
			defer c.Close()

			require.NoError(t, c.Set(ctx, "contacts:US", []byte(`[1]`), time.Minute))
			v, ok := c.Get(ctx, "contacts:US")
			assert.True(t, ok)
			assert.Equal(t, []byte(`[1]`), v)

			ok, err := c.SetNX(ctx, "contacts:US", []byte(`[2]`), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Delete(ctx, "contacts:US"))
			_, ok = c.Get(ctx, "contacts:US")
			assert.False(t, ok)

			ok, err = c.SetNX(ctx, "contacts:US", []byte(`[3]`), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, c.Clear(ctx))
			_, ok = c.Get(ctx, "contacts:US")
			assert.False(t, ok)
		})
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(LocalConfig{MaxSize: 10, DefaultExpiration: time.Minute})

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(LocalConfig{})

	type contact struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	require.NoError(t, SetJSON(ctx, c, "k", []contact{{Name: "Police", Phone: "911"}}, 0))

	var got []contact
	assert.True(t, GetJSON(ctx, c, "k", &got))
	assert.Equal(t, "911", got[0].Phone)
	assert.False(t, GetJSON(ctx, c, "missing", &got))
}

func TestNewCacheRejectsUnknownType(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}
