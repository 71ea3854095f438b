package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type backend interface {
	FindUser(ctx context.Context, id string) (domain.User, error)
	FindTask(ctx context.Context, id string) (domain.Task, error)
	UpsertUser(ctx context.Context, u domain.User) (domain.User, error)
}

// Cache wraps a Storage instance with Redis-backed caching for the
// reference lookups. Reference validation is read-heavy, and the snapshot
// semantics make slightly stale reads harmless: a snapshot is a
// point-in-time copy either way.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FindUser(ctx context.Context, id string) (domain.User, error) {
	if u, ok := loadCached[domain.User](ctx, c, userCacheKey(id)); ok {
		return u, nil
	}

	u, err := c.base.FindUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	c.storeCached(ctx, userCacheKey(id), u)
	return u, nil
}

func (c *Cache) FindTask(ctx context.Context, id string) (domain.Task, error) {
	if t, ok := loadCached[domain.Task](ctx, c, taskCacheKey(id)); ok {
		return t, nil
	}

	t, err := c.base.FindTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}

	c.storeCached(ctx, taskCacheKey(id), t)
	return t, nil
}

// UpsertUser writes through to the backing store and evicts the cached
// profile so the next lookup sees the synced record.
func (c *Cache) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	persisted, err := c.base.UpsertUser(ctx, u)
	if err != nil {
		return domain.User{}, err
	}

	c.evict(ctx, userCacheKey(persisted.ID))
	return persisted, nil
}

func loadCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) storeCached(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, key).Result()
}

func userCacheKey(id string) string {
	return "user:" + id
}

func taskCacheKey(id string) string {
	return "task:" + id
}
