package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores tokens as JSON with a TTL matching the token's expiry.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisCache wraps client. Keys are namespaced with prefix.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, now: time.Now}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Token, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", key, err)
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", key, err)
	}
	return &token, nil
}

// Set implements Cache. A token that has already expired is removed instead of stored.
func (c *RedisCache) Set(ctx context.Context, key string, token Token) error {
	ttl := token.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}
	body, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("set token %s: %w", key, err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete token %s: %w", key, err)
	}
	return nil
}
