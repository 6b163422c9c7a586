package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pdvledger/backend/internal/domain"
)

const (
	keyPrefix     = "pdvledger:"
	generationKey = keyPrefix + "summary:generation"
)

// RedisSummaryCache namespaces entries under a generation counter; bumping
// the counter orphans old entries, which then expire by TTL.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Generation(ctx context.Context) (Generation, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Generation(gen), nil
}

func (c *RedisSummaryCache) Get(ctx context.Context, gen Generation, key string) (*domain.Summary, bool, error) {
	val, err := c.client.Get(ctx, versionedKey(gen, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

// Set writes under the generation the caller read, not the current one.
func (c *RedisSummaryCache) Set(ctx context.Context, gen Generation, key string, value *domain.Summary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, versionedKey(gen, key), payload, ttl).Err()
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

func versionedKey(gen Generation, key string) string {
	return keyPrefix + "g" + strconv.FormatInt(int64(gen), 10) + ":" + key
}
