package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a KeyValueStore with Redis-backed caching for reads. Writes go
// to the base store first and then evict the affected cache entries.
type Cache struct {
	base  KeyValueStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base KeyValueStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if data, ok := c.load(ctx, itemCacheKey(collection, key)); ok {
		return data, true, nil
	}

	data, found, err := c.base.Get(ctx, collection, key)
	if err != nil || !found {
		return data, found, err
	}

	c.store(ctx, itemCacheKey(collection, key), data)
	return data, true, nil
}

func (c *Cache) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	if data, ok := c.load(ctx, collectionCacheKey(collection)); ok {
		var values [][]byte
		if err := sonic.ConfigStd.Unmarshal(data, &values); err == nil {
			return values, nil
		}
		c.evict(ctx, collectionCacheKey(collection))
	}

	values, err := c.base.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	if data, err := sonic.ConfigStd.Marshal(values); err == nil {
		c.store(ctx, collectionCacheKey(collection), data)
	}
	return values, nil
}

func (c *Cache) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := c.base.Put(ctx, collection, key, value); err != nil {
		return err
	}
	c.evict(ctx, itemCacheKey(collection, key), collectionCacheKey(collection))
	return nil
}

func (c *Cache) Delete(ctx context.Context, collection, key string) error {
	if err := c.base.Delete(ctx, collection, key); err != nil {
		return err
	}
	c.evict(ctx, itemCacheKey(collection, key), collectionCacheKey(collection))
	return nil
}

// Close closes the base store. The Redis client belongs to the caller.
func (c *Cache) Close() error {
	return Close(c.base)
}

func (c *Cache) load(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, key string, data []byte) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func itemCacheKey(collection, key string) string {
	return "kv:" + collection + ":" + key
}

func collectionCacheKey(collection string) string {
	return "kv-all:" + collection
}
