// Package cache keeps feed pages and single aggregates in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"symposium/api/internal/content"
	"symposium/api/internal/store"
)

const defaultTTL = 30 * time.Second

// RedisCache stores read models under a shared prefix. Feed pages are keyed
// by a generation counter so that one INCR invalidates every cached page.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, prefix: "symposium:", ttl: ttl}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + "feed:gen"
}

func (c *RedisCache) versionKey(id string) string {
	return c.prefix + "content:" + id + ":ver"
}

func (c *RedisCache) feedKey(generation int64, limit int, cursor string) string {
	return c.prefix + "feed:" + strconv.FormatInt(generation, 10) + ":" + strconv.Itoa(limit) + ":" + cursor
}

func (c *RedisCache) contentKey(id string, version int64) string {
	return c.prefix + "content:" + id + ":" + strconv.FormatInt(version, 10)
}

func (c *RedisCache) counter(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return n, nil
}

// FeedGeneration returns the current feed generation. A reader takes it once,
// before reading the store, and passes it to FeedPage and PutFeedPage so a
// page read before an invalidation is never stored under the newer generation.
func (c *RedisCache) FeedGeneration(ctx context.Context) (int64, error) {
	return c.counter(ctx, c.generationKey())
}

// FeedPage returns a cached page and whether it was present.
func (c *RedisCache) FeedPage(ctx context.Context, generation int64, limit int, cursor string) (store.Page, bool, error) {
	var page store.Page
	ok, err := c.load(ctx, c.feedKey(generation, limit, cursor), &page)
	if err != nil || !ok {
		return store.Page{}, false, err
	}
	if page.Items == nil {
		page.Items = []content.Aggregate{}
	}
	return page, true, nil
}

func (c *RedisCache) PutFeedPage(ctx context.Context, generation int64, limit int, cursor string, page store.Page) error {
	return c.save(ctx, c.feedKey(generation, limit, cursor), page)
}

// InvalidateFeed bumps the generation. Stale pages expire on their own TTL.
func (c *RedisCache) InvalidateFeed(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump feed generation: %w", err)
	}
	return nil
}

// ContentVersion returns the current cache version of one aggregate. It works
// like FeedGeneration, scoped to a single id.
func (c *RedisCache) ContentVersion(ctx context.Context, id string) (int64, error) {
	return c.counter(ctx, c.versionKey(id))
}

func (c *RedisCache) Content(ctx context.Context, id string, version int64) (content.Aggregate, bool, error) {
	var item content.Aggregate
	ok, err := c.load(ctx, c.contentKey(id, version), &item)
	if err != nil || !ok {
		return content.Aggregate{}, false, err
	}
	return item, true, nil
}

func (c *RedisCache) PutContent(ctx context.Context, version int64, item content.Aggregate) error {
	return c.save(ctx, c.contentKey(item.ID, version), item)
}

// InvalidateContent bumps the item version. Copies written under an older
// version are unreachable and expire on their own TTL.
func (c *RedisCache) InvalidateContent(ctx context.Context, id string) error {
	if err := c.client.Incr(ctx, c.versionKey(id)).Err(); err != nil {
		return fmt.Errorf("evict content %s: %w", id, err)
	}
	return nil
}

func (c *RedisCache) load(ctx context.Context, key string, into any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		// A payload from an older schema is treated as a miss.
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *RedisCache) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
