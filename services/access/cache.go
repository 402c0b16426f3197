package access

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// GrantCache remembers granted (article, buyer) pairs. Only grants are stored, never denials
// or plaintext.
type GrantCache interface {
	Has(ctx context.Context, articleID int64, buyer string) (bool, error)
	Put(ctx context.Context, articleID int64, buyer string) error
	Clear(ctx context.Context) error
}

// NoCache disables grant caching.
type NoCache struct{}

func (NoCache) Has(context.Context, int64, string) (bool, error) {
	return false, nil
}

func (NoCache) Put(context.Context, int64, string) error {
	return nil
}

func (NoCache) Clear(context.Context) error {
	return nil
}

const grantKeyPrefix = "articlepulse:grant:"

// DefaultGrantTTL bounds how long a cached grant survives.
const DefaultGrantTTL = 24 * time.Hour

// RedisGrantCache stores grants as expiring Redis keys.
type RedisGrantCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisGrantCache wraps client.
func NewRedisGrantCache(client redis.UniversalClient, ttl time.Duration) *RedisGrantCache {
	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}
	return &RedisGrantCache{client: client, ttl: ttl}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func grantKey(articleID int64, buyer string) string {
	return fmt.Sprintf("%s%d:%s", grantKeyPrefix, articleID, buyer)
}

func (c *RedisGrantCache) Has(ctx context.Context, articleID int64, buyer string) (bool, error) {
	n, err := c.client.Exists(ctx, grantKey(articleID, buyer)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisGrantCache) Put(ctx context.Context, articleID int64, buyer string) error {
	return c.client.Set(ctx, grantKey(articleID, buyer), "1", c.ttl).Err()
}

// Clear drops every cached grant. Used after an administrative purchase reset.
func (c *RedisGrantCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, grantKeyPrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 500 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}
