package kv

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedBackend serves repeated reads from memory. Writes go through to
// the wrapped backend first.
type CachedBackend struct {
	Backend
	cache *cache.Cache
}

// NewCachedBackend wraps backend with a read cache of the given TTL
func NewCachedBackend(backend Backend, ttl time.Duration) *CachedBackend {
	return &CachedBackend{
		Backend: backend,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func cacheKey(typ, key string) string { return typ + "/" + key }

// Read implements Backend
func (c *CachedBackend) Read(ctx context.Context, typ, key string) ([]byte, error) {
	if v, ok := c.cache.Get(cacheKey(typ, key)); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	data, err := c.Backend.Read(ctx, typ, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey(typ, key), append([]byte(nil), data...), cache.DefaultExpiration)
	return data, nil
}

// Write implements Backend
func (c *CachedBackend) Write(ctx context.Context, typ, key string, data []byte) error {
	if err := c.Backend.Write(ctx, typ, key, data); err != nil {
		c.cache.Delete(cacheKey(typ, key))
		return err
	}
	c.cache.Set(cacheKey(typ, key), append([]byte(nil), data...), cache.DefaultExpiration)
	return nil
}
